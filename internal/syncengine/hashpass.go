package syncengine

import (
	"fmt"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
	"github.com/Zealsathish/snapraid/internal/handle"
	"github.com/Zealsathish/snapraid/internal/hashfn"
)

// hashProcess is the prehash pass: for every CHG block in
// [blockstart, blockmax), read its data and fill in the hash,
// promoting the block to REP without touching parity. It
// never runs unless Opts.Prehash is set.
func hashProcess(a *Array, blockstart, blockmax blockmodel.Off) (skipSync bool, err error) {
	handles := handle.Map(a.Disks)
	buf := make([]byte, a.BlockSize)

	var fileErrors, ioErrors uint
	bail := false

	for _, h := range handles {
		if h.Disk == nil {
			continue
		}

		for i := blockstart; i < blockmax; i++ {
			blk := h.Disk.Get(i)

			if !blk.State.HasFile() || blk.State.HasUpdatedHash() {
				continue
			}

			info := a.Info.Get(i)

			if err := h.Open(blk.File, a.FileMode); err != nil {
				if handle.IsEIO(err) {
					a.Log.Error("DANGER! I/O error opening %s on disk %s, block %d: %v\n", blk.File.SubPath, h.Disk.Name, i, err)
					ioErrors++
					bail = true
					break
				}
				if handle.IsBenignOpenError(err) {
					a.Log.Warning("missing or inaccessible file %s on disk %s\n", blk.File.SubPath, h.Disk.Name)
					fileErrors++
					continue
				}
				fileErrors++
				bail = true
				break
			}

			if h.StatMismatch(blk.File) {
				a.Log.Warning("file %s on disk %s changed during sync\n", blk.File.SubPath, h.Disk.Name)
				fileErrors++
				continue
			}

			n, rerr := h.Read(blk.FilePos, buf, a.BlockSize)
			if rerr != nil {
				if handle.IsEIO(rerr) {
					a.Log.Error("DANGER! I/O error reading %s on disk %s, block %d: %v\n", blk.File.SubPath, h.Disk.Name, i, rerr)
					ioErrors++
					bail = true
					break
				}
				fileErrors++
				bail = true
				break
			}

			hasher := a.Hash
			if info.Rehash {
				hasher = a.PrevHash
			}
			var digest hashfn.Digest
			hasher.Sum(&digest, buf[:n])

			blk.Hash = digest
			blk.State = blockmodel.Rep
			h.Disk.Set(i, blk)
			a.needWrite = true

			if a.Log.Progress(uint32(i), 0, uint32(blockmax-blockstart)) {
				skipSync = true
				bail = true
				break
			}
		}

		if cerr := h.Close(); cerr != nil {
			if handle.IsEIO(cerr) {
				ioErrors++
			} else {
				fileErrors++
			}
			bail = true
		}

		if bail {
			break
		}
	}

	for _, h := range handles {
		if h.Disk != nil {
			h.Close()
		}
	}

	if bail {
		skipSync = true
	}

	if fileErrors+ioErrors != 0 {
		return skipSync, fmt.Errorf("%d file errors, %d io errors", fileErrors, ioErrors)
	}
	return skipSync, nil
}
