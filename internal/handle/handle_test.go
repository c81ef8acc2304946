package handle

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
)

func writeFile(t *testing.T, dir, name string, content []byte) *blockmodel.FileEntity {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	fe, err := StatEntity(path, name)
	require.NoError(t, err)
	return fe
}

func TestOpenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fe := writeFile(t, dir, "a.bin", []byte("0123456789"))

	d := blockmodel.NewDisk("d0", dir)
	h := &Handle{Disk: d}

	require.NoError(t, h.Open(fe, 0o600))
	defer h.Close()

	buf := make([]byte, 4)
	n, err := h.Read(0, buf, 4)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("0123"), buf)
}

func TestReadShortLastBlock(t *testing.T) {
	dir := t.TempDir()
	fe := writeFile(t, dir, "b.bin", []byte("abc"))

	d := blockmodel.NewDisk("d0", dir)
	h := &Handle{Disk: d}
	require.NoError(t, h.Open(fe, 0o600))
	defer h.Close()

	buf := make([]byte, 8)
	n, err := h.Read(0, buf, 8)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStatMismatchDetectsSizeChange(t *testing.T) {
	dir := t.TempDir()
	fe := writeFile(t, dir, "c.bin", []byte("12345"))

	d := blockmodel.NewDisk("d0", dir)
	h := &Handle{Disk: d}
	require.NoError(t, h.Open(fe, 0o600))
	defer h.Close()

	require.False(t, h.StatMismatch(fe))

	stale := *fe
	stale.Size = 999
	require.True(t, h.StatMismatch(&stale))
}

func TestOpenMissingFileIsBenign(t *testing.T) {
	dir := t.TempDir()
	d := blockmodel.NewDisk("d0", dir)
	h := &Handle{Disk: d}
	fe := &blockmodel.FileEntity{SubPath: "missing.bin"}

	err := h.Open(fe, 0o600)
	require.Error(t, err)
	require.True(t, IsBenignOpenError(err))
	require.False(t, IsEIO(err))
}

func TestIsEIO(t *testing.T) {
	require.True(t, IsEIO(syscall.EIO))
	require.False(t, IsEIO(syscall.ENOENT))
}

func TestOpenSwitchesFileOnSameSlot(t *testing.T) {
	dir := t.TempDir()
	feA := writeFile(t, dir, "a.bin", []byte("aaaa"))
	feB := writeFile(t, dir, "b.bin", []byte("bbbb"))

	d := blockmodel.NewDisk("d0", dir)
	h := &Handle{Disk: d}
	require.NoError(t, h.Open(feA, 0o600))
	require.NoError(t, h.Open(feB, 0o600))
	require.Equal(t, feB, h.File)

	buf := make([]byte, 4)
	n, err := h.Read(0, buf, 4)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte("bbbb"), buf)
	h.Close()
}
