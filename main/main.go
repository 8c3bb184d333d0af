package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/rawbytedev/relo"
	"github.com/rawbytedev/relo/arena"
)

type Item struct {
	Name  string
	Count uint32
}

type Player struct {
	Name      string
	Health    uint32
	Inventory []Item
}

type World struct {
	Tick    uint64
	Players []Player
}

func main() {
	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()
	f, err := os.Create("mem.prof")
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	runtime.MemProfileRate = 1

	world := World{
		Tick: 42,
		Players: []Player{
			{Name: "azerty", Health: 100, Inventory: []Item{{"sword", 1}, {"potion", 3}}},
			{Name: "random", Health: 87, Inventory: []Item{{"bow", 1}}},
		},
	}
	buf := arena.AlignedBytes(4096, 8)
	heap := arena.NewChunk()
	for i := 0; i < 10000; i++ {
		used, err := relo.SealToBuffer(&world, buf)
		if err != nil {
			log.Fatal(err)
		}
		if _, err := relo.UnsealFromBuffer[World](buf[:used], heap); err != nil {
			log.Fatal(err)
		}
		heap.Release()
	}
	pprof.WriteHeapProfile(f)
	time.Sleep(5 * time.Minute)
}
