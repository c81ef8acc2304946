// Package handle is the data-disk file abstraction the sync engine
// drives: lazily open the file backing a block, stat-compare it
// against what the content file recorded, and read one block-sized
// slice, distinguishing EIO from benign errno values along the way.
package handle

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
)

// Handle is one data-disk slot for the duration of a sync run. It owns
// at most one open *os.File at a time: the file backing whichever
// block was last opened on this disk.
type Handle struct {
	Disk *blockmodel.Disk // nil for an unused disk slot
	File *blockmodel.FileEntity
	Path string

	f    *os.File
	stat stat
}

type stat struct {
	size      int64
	mtimeSec  int64
	mtimeNsec int32
	inode     uint64
}

// Map builds one handle per disk, preserving order; diskmax is
// len(disks). A nil entry in disks yields a handle with Disk == nil,
// which the sync loop treats as an always-empty slot.
func Map(disks []*blockmodel.Disk) []*Handle {
	handles := make([]*Handle, len(disks))
	for j, d := range disks {
		handles[j] = &Handle{Disk: d}
	}
	return handles
}

// IsEIO reports whether err is (or wraps) EIO, the only errno the
// sync engine treats as evidence the underlying disk is failing
// rather than that a file was merely touched concurrently.
func IsEIO(err error) bool {
	return errors.Is(err, syscall.EIO)
}

// IsBenignOpenError reports whether err is one of the errno values the
// sync engine tolerates on open: the file vanished or access was
// revoked while sync was running.
func IsBenignOpenError(err error) bool {
	return errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.EACCES)
}

// Close closes whatever file is currently open on h, if any, and
// clears h.File. It is only ever called to switch to a different file
// on the same disk slot, or at the end of a run.
func (h *Handle) Close() error {
	if h.f == nil {
		return nil
	}
	err := h.f.Close()
	h.f = nil
	h.File = nil
	return err
}

// Open closes whatever file is currently open on h if it differs from
// file, then opens file (read-only) and stats it. mode is accepted for
// symmetry with the write-side parity handle but is unused since data
// disks are only ever read by sync.
func (h *Handle) Open(file *blockmodel.FileEntity, mode os.FileMode) error {
	if h.f != nil && h.File != file {
		if err := h.Close(); err != nil {
			return err
		}
	}
	if h.f != nil {
		return nil
	}

	path := filepath.Join(h.Disk.Dir, file.SubPath)
	f, err := os.Open(path)
	if err != nil {
		return err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	h.f = f
	h.File = file
	h.Path = path
	h.stat = statOf(fi)
	return nil
}

// StatMismatch reports whether the file currently open on h no longer
// matches the size/mtime/inode recorded in file — the signature of a
// data disk modified concurrently with the sync.
func (h *Handle) StatMismatch(file *blockmodel.FileEntity) bool {
	return h.stat.size != file.Size ||
		h.stat.mtimeSec != file.MtimeSec ||
		h.stat.mtimeNsec != file.MtimeNsec ||
		h.stat.inode != file.Inode
}

// Read fills buf (up to blockSize bytes) with the content of the block
// at blockPos block-units into the currently open file. It returns the
// number of bytes actually read, which is short only for the last
// block of a file whose size is not a multiple of blockSize; the
// caller is responsible for zero-padding the remainder before use.
func (h *Handle) Read(blockPos blockmodel.Off, buf []byte, blockSize int) (int, error) {
	off := int64(blockPos) * int64(blockSize)
	n, err := h.f.ReadAt(buf[:blockSize], off)
	if err != nil && err != io.EOF {
		return 0, err
	}
	return n, nil
}

func statOf(fi os.FileInfo) stat {
	s := stat{size: fi.Size()}
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		s.mtimeSec = sys.Mtim.Sec
		s.mtimeNsec = int32(sys.Mtim.Nsec)
		s.inode = sys.Ino
	} else {
		mt := fi.ModTime()
		s.mtimeSec = mt.Unix()
		s.mtimeNsec = int32(mt.Nanosecond())
	}
	return s
}

// StatEntity captures the current on-disk attributes of path as a
// FileEntity, used when a file is first discovered by the content-file
// loader (outside the scope of this package's contract, but shared
// here since it is the one place that knows how to read a stat_t).
func StatEntity(path, subPath string) (*blockmodel.FileEntity, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	s := statOf(fi)
	return &blockmodel.FileEntity{
		SubPath:   subPath,
		Size:      s.size,
		MtimeSec:  s.mtimeSec,
		MtimeNsec: s.mtimeNsec,
		Inode:     s.inode,
	}, nil
}
