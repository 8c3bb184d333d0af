package snapshot

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/relo"
	"github.com/rawbytedev/relo/arena"
)

func TestWriteReadRaw(t *testing.T) {
	region := []byte("hello I'm a sealed region")
	var f bytes.Buffer
	hdr, err := Write(&f, region, Options{})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, hdr.ID)
	require.Equal(t, uint32(len(region)), hdr.RawLen)

	got, out, err := Read(&f)
	require.NoError(t, err)
	require.Equal(t, hdr.ID, got.ID)
	require.Equal(t, region, out)
}

func TestWriteReadZstd(t *testing.T) {
	region := bytes.Repeat([]byte{0xAB, 0, 0, 0}, 1024)
	var f bytes.Buffer
	hdr, err := Write(&f, region, Options{Compress: true})
	require.NoError(t, err)
	require.NotZero(t, hdr.Flags&FlagZstd)
	assert.Less(t, f.Len(), len(region), "repetitive regions should shrink")

	_, out, err := Read(&f)
	require.NoError(t, err)
	require.Equal(t, region, out)
}

func TestReadKeepsCallerID(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-00000000beef")
	var f bytes.Buffer
	_, err := Write(&f, []byte{1, 2, 3}, Options{ID: id})
	require.NoError(t, err)
	hdr, _, err := Read(&f)
	require.NoError(t, err)
	require.Equal(t, id, hdr.ID)
}

func TestReadBadMagic(t *testing.T) {
	var f bytes.Buffer
	_, err := Write(&f, []byte{1}, Options{})
	require.NoError(t, err)
	data := f.Bytes()
	data[0] ^= 0xFF
	_, _, err = Read(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestReadBadChecksum(t *testing.T) {
	var f bytes.Buffer
	_, err := Write(&f, []byte{1, 2, 3, 4}, Options{})
	require.NoError(t, err)
	data := f.Bytes()
	data[HeaderSize] ^= 0xFF // flip a payload byte
	_, _, err = Read(bytes.NewReader(data))
	require.ErrorIs(t, err, ErrBadChecksum)
}

func TestReadTruncated(t *testing.T) {
	var f bytes.Buffer
	_, err := Write(&f, []byte{1, 2, 3, 4}, Options{})
	require.NoError(t, err)
	data := f.Bytes()
	_, _, err = Read(bytes.NewReader(data[:len(data)-2]))
	require.Error(t, err)
}

type saveState struct {
	Tick  uint64
	Name  string
	Items []uint32
}

func TestSnapshotCarriesSealedGraph(t *testing.T) {
	src := saveState{Tick: 9, Name: "azerty", Items: []uint32{100, 250, 300}}
	buf := arena.AlignedBytes(256, 8)
	used, err := relo.SealToBuffer(&src, buf)
	require.NoError(t, err)

	var f bytes.Buffer
	_, err = Write(&f, buf[:used], Options{Compress: true})
	require.NoError(t, err)

	_, region, err := Read(&f)
	require.NoError(t, err)
	res, err := relo.UnsealFromBuffer[saveState](region, arena.NewChunk())
	require.NoError(t, err)
	require.Equal(t, src, *res)
}
