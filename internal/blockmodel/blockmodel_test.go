package blockmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateHasFile(t *testing.T) {
	require.False(t, Empty.HasFile())
	require.True(t, Blk.HasFile())
	require.True(t, Chg.HasFile())
	require.True(t, Rep.HasFile())
	require.False(t, Deleted.HasFile())
}

func TestStateHasUpdatedHash(t *testing.T) {
	require.True(t, Blk.HasUpdatedHash())
	require.True(t, Rep.HasUpdatedHash())
	require.False(t, Chg.HasUpdatedHash())
	require.False(t, Deleted.HasUpdatedHash())
	require.False(t, Empty.HasUpdatedHash())
}

func TestStateHasInvalidParity(t *testing.T) {
	require.False(t, Blk.HasInvalidParity())
	require.True(t, Chg.HasInvalidParity())
	require.True(t, Rep.HasInvalidParity())
	require.True(t, Deleted.HasInvalidParity())
	require.False(t, Empty.HasInvalidParity())
}

func TestDiskGetBeyondExtent(t *testing.T) {
	d := NewDisk("d0", "/data/d0")
	require.Equal(t, Empty, d.Get(5).State)
}

func TestDiskSetGrowsAndRoundTrips(t *testing.T) {
	d := NewDisk("d0", "/data/d0")
	fe := &FileEntity{SubPath: "a.txt", Size: 4096}
	d.Set(3, Block{State: Blk, File: fe})
	require.Equal(t, Off(4), d.BlockMax())
	require.Equal(t, Blk, d.Get(3).State)
	require.Equal(t, Empty, d.Get(0).State)
}

func TestDiskSetStateToEmptyClearsFileAndHash(t *testing.T) {
	d := NewDisk("d0", "/data/d0")
	d.Set(0, Block{State: Deleted, File: &FileEntity{SubPath: "x"}})
	d.SetState(0, Empty)
	b := d.Get(0)
	require.Equal(t, Empty, b.State)
	require.Nil(t, b.File)
	require.True(t, b.Hash.IsZero())
}

func TestInfoArraySetBadPreservesOtherFields(t *testing.T) {
	a := NewInfoArray(0)
	a.Set(2, Make(100, false, true))
	a.Set(2, a.Get(2).SetBad())
	got := a.Get(2)
	require.True(t, got.Bad)
	require.True(t, got.Rehash)
	require.Equal(t, int64(100), got.Timestamp)
}

func TestInfoArrayGetBeyondExtent(t *testing.T) {
	a := NewInfoArray(1)
	require.Equal(t, Info{}, a.Get(50))
}
