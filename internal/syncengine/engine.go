// Package syncengine is the sync engine proper: the hash pass, the
// sync pass, their surrounding block-state machine, and the driver
// that wires them to the parity files and the content-file
// checkpoint. This is the core described by the specification this
// module implements; every other internal package is a collaborator
// it drives through a narrow contract.
package syncengine

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
	"github.com/Zealsathish/snapraid/internal/content"
	"github.com/Zealsathish/snapraid/internal/hashfn"
	"github.com/Zealsathish/snapraid/internal/parity"
	"github.com/Zealsathish/snapraid/internal/raidcodec"
	"github.com/Zealsathish/snapraid/internal/xlog"
)

// Options carries every sync-affecting flag the CLI or caller may set.
type Options struct {
	SkipFallocate     bool
	ForceFull         bool
	ForceNocopy       bool
	Prehash           bool
	ExpectRecoverable bool
	ForceAutosaveAt   blockmodel.Off
	IOErrorLimit      uint
}

// ParityLevel pairs one parity file with the name it is configured
// under (the array's idea of "P", "Q", and so on).
type ParityLevel struct {
	Name string
	Path string
}

// Array is the sync engine's view of one snapshot array: its data
// disks, its per-index metadata, the hash algorithms in play and the
// parity levels to keep in sync with them.
type Array struct {
	BlockSize int
	Level     int // 1..raidcodec.MaxLevel
	FileMode  os.FileMode

	Disks []*blockmodel.Disk
	Info  *blockmodel.InfoArray

	Hash     hashfn.Hasher // current algorithm
	PrevHash hashfn.Hasher // algorithm superseded by Hash, used while Info.Rehash is set

	ParityLevels []ParityLevel
	AutosaveSize int64 // bytes; 0 disables autosave

	Opts    Options
	Content *content.Store

	Log   *xlog.Logger
	Codec *raidcodec.Codec

	parity    []*parity.Handle
	needWrite bool
}

// AllocatedSize returns one past the highest block index any disk
// currently uses — the number of blocks the parity files must hold.
func (a *Array) AllocatedSize() blockmodel.Off {
	var max blockmodel.Off
	for _, d := range a.Disks {
		if d.BlockMax() > max {
			max = d.BlockMax()
		}
	}
	return max
}

// now is overridable by tests so info timestamps are deterministic.
var now = func() time.Time { return time.Now() }

// Sync is the driver (state_sync): it opens/resizes every parity
// level, runs the optional hash pass, runs the sync pass over
// [blockstart, blockmax), and closes every parity level. It returns
// nil on success.
//
// When Opts.ExpectRecoverable is set the success condition is
// inverted, mirroring the original tool's test-only contract: the
// call "succeeds" (returns nil) only if an error WAS encountered.
func (a *Array) Sync(blockstart, blockcount blockmodel.Off) error {
	a.Log.Status("Initializing...\n")

	blockmax := a.AllocatedSize()
	if blockcount != 0 && blockstart+blockcount < blockmax {
		blockmax = blockstart + blockcount
	}

	if blockstart > blockmax {
		return fmt.Errorf("sync: start block %d is past the parity size %d", blockstart, blockmax)
	}

	if err := a.openParity(blockmax); err != nil {
		return err
	}
	defer a.closeParity()

	skipSync := false
	sawError := false

	if a.Opts.Prehash {
		a.Log.Status("Hashing...\n")
		skip, err := hashProcess(a, blockstart, blockmax)
		skipSync = skip
		if err != nil {
			sawError = true
			a.Log.Error("hash pass: %v\n", err)
		}
		if a.needWrite {
			if werr := a.checkpoint(); werr != nil {
				return werr
			}
		}
	}

	if !skipSync {
		a.Log.Status("Syncing...\n")
		if blockstart < blockmax {
			if err := a.syncProcess(blockstart, blockmax); err != nil {
				sawError = true
				a.Log.Error("sync pass: %v\n", err)
			}
		} else {
			a.Log.Status("Nothing to do\n")
		}
		if a.needWrite {
			if werr := a.checkpoint(); werr != nil {
				return werr
			}
		}
	}

	if a.Opts.ExpectRecoverable {
		if !sawError {
			return fmt.Errorf("sync: expected a recoverable error but none occurred")
		}
		return nil
	}
	if sawError {
		return fmt.Errorf("sync: unrecoverable error, see log")
	}
	return nil
}

// openParity creates every configured parity level, sizes them to
// blockmax blocks, and aborts (per level-opening policy) if an
// existing parity file is implausibly small for a non-forced sync.
func (a *Array) openParity(blockmax blockmodel.Off) error {
	size := int64(blockmax) * int64(a.BlockSize)

	handles := make([]*parity.Handle, len(a.ParityLevels))
	allocated := make([]blockmodel.Off, len(a.ParityLevels))

	g := new(errgroup.Group)
	for l, lvl := range a.ParityLevels {
		l, lvl := l, lvl
		g.Go(func() error {
			h, out, err := parity.Create(lvl.Path, a.FileMode)
			if err != nil {
				return fmt.Errorf("parity %s: %w", lvl.Name, err)
			}
			handles[l] = h
			allocated[l] = blockmodel.Off(out / int64(a.BlockSize))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var smallest blockmodel.Off
	for l, n := range allocated {
		if l == 0 || n < smallest {
			smallest = n
		}
	}

	used := a.AllocatedSize()
	if !a.Opts.ForceFull && smallest < used {
		for _, h := range handles {
			h.Close()
		}
		if smallest == 0 {
			return fmt.Errorf("sync: parity files are empty; disks may not be mounted, or use --force-full for a new level")
		}
		return fmt.Errorf("sync: parity files hold only %d blocks, expected %d; use --force-full to rebuild", smallest, used)
	}

	for l, h := range handles {
		if _, err := h.Chsize(size, a.Opts.SkipFallocate); err != nil {
			return fmt.Errorf("parity %s: resize: %w", a.ParityLevels[l].Name, err)
		}
	}

	a.parity = handles
	return nil
}

func (a *Array) closeParity() {
	for _, h := range a.parity {
		if err := h.Close(); err != nil {
			a.Log.Error("parity close: %v\n", err)
		}
	}
}

// checkpoint fsyncs every parity level and only then persists the
// content file — the ordering invariant the whole design rests on.
func (a *Array) checkpoint() error {
	for l, h := range a.parity {
		if err := h.Sync(); err != nil {
			return fmt.Errorf("parity %s: sync: %w", a.ParityLevels[l].Name, err)
		}
	}

	snap := &content.Snapshot{
		BlockSize: a.BlockSize,
		Level:     a.Level,
		Info:      snapshotInfo(a.Info),
	}
	for _, d := range a.Disks {
		snap.Disks = append(snap.Disks, content.DiskSnapshot{Name: d.Name, Dir: d.Dir, Blocks: d.Blocks})
	}

	if err := a.Content.Save(snap); err != nil {
		return err
	}
	a.needWrite = false
	return nil
}

func snapshotInfo(a *blockmodel.InfoArray) []blockmodel.Info {
	out := make([]blockmodel.Info, a.Len())
	for i := blockmodel.Off(0); i < a.Len(); i++ {
		out[i] = a.Get(i)
	}
	return out
}
