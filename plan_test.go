package relo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawbytedev/relo/arena"
)

func TestPlanRejectsUnsupportedKinds(t *testing.T) {
	a := arena.NewChunk()

	type hasMap struct{ M map[string]int }
	_, err := Compact(a, &hasMap{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type hasChan struct{ C chan int }
	_, err = Compact(a, &hasChan{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type hasFunc struct{ F func() }
	_, err = Compact(a, &hasFunc{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type hasIface struct{ I any }
	_, err = Compact(a, &hasIface{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type deep struct {
		A uint64
		B []struct{ M map[int]int }
	}
	_, err = Compact(a, &deep{})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPlanRejectsZeroSized(t *testing.T) {
	a := arena.NewChunk()

	_, err := Compact(a, &struct{}{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type marker struct {
		_ [0]int
		A uint32
	}
	_, err = Compact(a, &marker{A: 1})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPlanErrorIsCached(t *testing.T) {
	type hasMap struct{ M map[string]int }
	a := arena.NewChunk()
	_, err1 := Compact(a, &hasMap{})
	_, err2 := Compact(a, &hasMap{})
	require.ErrorIs(t, err1, ErrUnsupportedType)
	require.Equal(t, err1, err2)
}

func TestPlanUnionValidation(t *testing.T) {
	a := arena.NewChunk()

	type twoTags struct {
		A uint8 `relo:"tag"`
		B uint8 `relo:"tag"`
	}
	_, err := Compact(a, &twoTags{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type caseNoTag struct {
		S string `relo:"case=0"`
	}
	_, err = Compact(a, &caseNoTag{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type untaggedPtr struct {
		Kind uint8 `relo:"tag"`
		S    string
	}
	_, err = Compact(a, &untaggedPtr{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type dupCase struct {
		Kind uint8  `relo:"tag"`
		A    string `relo:"case=1"`
		B    string `relo:"case=1"`
	}
	_, err = Compact(a, &dupCase{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	type floatTag struct {
		Kind float32 `relo:"tag"`
		A    string  `relo:"case=0"`
	}
	_, err = Compact(a, &floatTag{})
	require.ErrorIs(t, err, ErrUnsupportedType)

	// Untagged scalar fields are plain record members of a union.
	type scalarHeader struct {
		Gen  uint32
		Kind uint8  `relo:"tag"`
		S    string `relo:"case=0"`
	}
	v := scalarHeader{Gen: 7, Kind: 0, S: "ok"}
	res, err := Compact(a, &v)
	require.NoError(t, err)
	require.Equal(t, v, *res)
}

func TestNegativeUnionCase(t *testing.T) {
	type signedU struct {
		Kind int8   `relo:"tag"`
		Neg  string `relo:"case=-1"`
		Pos  string `relo:"case=1"`
	}
	v := signedU{Kind: -1, Neg: "below zero"}
	res, err := Compact(arena.NewChunk(), &v)
	require.NoError(t, err)
	require.Equal(t, "below zero", res.Neg)
}

func TestContainsPointer(t *testing.T) {
	assert.False(t, ContainsPointer[uint64]())
	assert.False(t, ContainsPointer[[16]uint32]())
	assert.False(t, ContainsPointer[struct {
		A uint32
		B [3]float64
	}]())

	assert.True(t, ContainsPointer[string]())
	assert.True(t, ContainsPointer[[]uint8]())
	assert.True(t, ContainsPointer[*uint32]())
	assert.True(t, ContainsPointer[struct{ P *uint64 }]())
	assert.True(t, ContainsPointer[[2]struct{ S []byte }]())
	assert.True(t, ContainsPointer[treeR]())

	// Kinds the walker rejects still answer truthfully.
	assert.True(t, ContainsPointer[map[string]int]())
	assert.True(t, ContainsPointer[chan int]())
}

func TestPlanCacheSharedAcrossRoots(t *testing.T) {
	// Two roots sharing a subtree type reuse one schedule; this mostly
	// guards the inflight/global cache handoff for recursive types.
	src := branchLeafTree()
	a := arena.NewChunk()
	_, err := Compact(a, &src)
	require.NoError(t, err)

	type wrapper struct {
		N treeR
	}
	w := wrapper{N: branchLeafTree()}
	res, err := Compact(a, &w)
	require.NoError(t, err)
	require.Equal(t, w, *res)
}
