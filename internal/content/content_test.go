package content

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
)

func TestLoadOnFreshStoreIsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	in := &Snapshot{
		BlockSize: 256 * 1024,
		Level:     2,
		Disks: []DiskSnapshot{
			{
				Name: "d0",
				Dir:  "/data/d0",
				Blocks: []blockmodel.Block{
					{State: blockmodel.Blk, File: &blockmodel.FileEntity{SubPath: "a.txt", Size: 10}},
				},
			},
		},
		Info: []blockmodel.Info{
			{Timestamp: 42, Bad: false, Rehash: true},
		},
	}

	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, in.BlockSize, out.BlockSize)
	require.Equal(t, in.Level, out.Level)
	require.Len(t, out.Disks, 1)
	require.Equal(t, "d0", out.Disks[0].Name)
	require.Equal(t, blockmodel.Blk, out.Disks[0].Blocks[0].State)
	require.Equal(t, in.Info, out.Info)
}

func TestSaveOverwritesPreviousSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&Snapshot{BlockSize: 1, Level: 1}))
	require.NoError(t, s.Save(&Snapshot{BlockSize: 2, Level: 1}))

	out, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, 2, out.BlockSize)
}
