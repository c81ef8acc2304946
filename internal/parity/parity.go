// Package parity is the parity-file abstraction the sync engine
// drives: one instance per redundancy level (P, Q, R, S, T, U), each a
// flat grid of block_size-sized blocks addressed by logical block
// index, with explicit truncate/extend and an explicit durability
// barrier (Sync) the engine calls before ever checkpointing state.
package parity

import (
	"os"
	"syscall"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
)

// Handle is one open parity file.
type Handle struct {
	Path string

	f *os.File
}

// Create opens path for read/write, creating it if missing, and
// reports its current size in bytes.
func Create(path string, mode os.FileMode) (*Handle, int64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, mode)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return &Handle{Path: path, f: f}, fi.Size(), nil
}

// Chsize truncates or extends h to size bytes, preallocating the new
// extent with fallocate unless skipFallocate is set. A failed fallocate
// is ignored. On success it returns size.
func (h *Handle) Chsize(size int64, skipFallocate bool) (int64, error) {
	if !skipFallocate && size > 0 {
		// best effort: a filesystem without fallocate support still
		// gets a correctly sized, if sparse, file from Truncate below
		_ = syscall.Fallocate(int(h.f.Fd()), 0, 0, size)
	}
	if err := h.f.Truncate(size); err != nil {
		return 0, err
	}
	return size, nil
}

// ReadBlock reads the block at logical index i into buf, which must be
// at least blockSize bytes.
func (h *Handle) ReadBlock(i blockmodel.Off, buf []byte, blockSize int) error {
	_, err := h.f.ReadAt(buf[:blockSize], int64(i)*int64(blockSize))
	return err
}

// WriteBlock writes buf (blockSize bytes) at logical index i.
func (h *Handle) WriteBlock(i blockmodel.Off, buf []byte, blockSize int) error {
	_, err := h.f.WriteAt(buf[:blockSize], int64(i)*int64(blockSize))
	return err
}

// Sync flushes h to stable storage; the engine never checkpoints state
// without first calling this on every level.
func (h *Handle) Sync() error {
	return h.f.Sync()
}

// Close releases the underlying descriptor.
func (h *Handle) Close() error {
	return h.f.Close()
}

// AllocatedBlocks returns the parity file's current size in whole
// blocks. The driver takes the same measure from the size Create
// reports rather than calling this.
func (h *Handle) AllocatedBlocks(blockSize int) (blockmodel.Off, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return blockmodel.Off(fi.Size() / int64(blockSize)), nil
}
