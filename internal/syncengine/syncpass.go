package syncengine

import (
	"fmt"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
	"github.com/Zealsathish/snapraid/internal/handle"
	"github.com/Zealsathish/snapraid/internal/hashfn"
	"github.com/Zealsathish/snapraid/internal/raidcodec"
)

// failedBlock is one disk's contribution to the "failed set" at the
// current index: a block whose parity is stale (CHG/REP/DELETED) or
// whose stored hash no longer matches its content (a BLK silent
// error). Both kinds may need to be fed through RAID reconstruction.
type failedBlock struct {
	index int // disk index j
	size  int // BlockSize for stale-parity entries; bytes read for a BLK silent error
	block blockmodel.Block
}

// pendingRehash holds a freshly computed new-algorithm digest for one
// disk slot, applied to the block only after the index commits cleanly
// — never partway through a skipped or failed block.
type pendingRehash struct {
	active bool
	digest hashfn.Digest
}

// blockIsEnabled reports whether index i has at least one disk with a
// live file and at least one disk whose parity is stale; indices that
// fail either condition need no work this run.
func blockIsEnabled(i blockmodel.Off, handles []*handle.Handle) bool {
	oneValid := false
	oneInvalid := false
	for _, h := range handles {
		if h.Disk == nil {
			continue
		}
		b := h.Disk.Get(i)
		if b.State.HasFile() {
			oneValid = true
		}
		if b.State.HasInvalidParity() {
			oneInvalid = true
		}
	}
	return oneValid && oneInvalid
}

// syncProcess is the central loop: for every enabled index it reads
// every disk, verifies or records hashes, attempts RAID recovery of a
// silently corrupted BLK, recomputes and writes parity when needed,
// and commits the resulting block-state transitions.
func (a *Array) syncProcess(blockstart, blockmax blockmodel.Off) error {
	handles := handle.Map(a.Disks)
	diskmax := len(handles)
	level := a.Level

	buffermax := 2*diskmax + level + 1
	buffer := make([][]byte, buffermax)
	for k := range buffer {
		buffer[k] = make([]byte, a.BlockSize)
	}
	raidcodec.Zero(buffer[buffermax-1])

	scratchBase := diskmax + level

	var fileErrors, silentErrors, ioErrors uint
	bail := false

	var countmax blockmodel.Off
	for i := blockstart; i < blockmax; i++ {
		if blockIsEnabled(i, handles) {
			countmax++
		}
	}
	var autosaveLimit blockmodel.Off
	if a.AutosaveSize != 0 {
		autosaveLimit = blockmodel.Off(a.AutosaveSize / (int64(diskmax) * int64(a.BlockSize)))
	}
	autosaveMissing := countmax
	var autosaveDone blockmodel.Off

	pending := make([]pendingRehash, diskmax)

	for i := blockstart; i < blockmax && !bail; i++ {
		if !blockIsEnabled(i, handles) {
			continue
		}
		autosaveDone++
		autosaveMissing--

		info := a.Info.Get(i)
		rehash := info.Rehash

		errorOnThisBlock := false
		silentErrorOnThisBlock := false
		ioErrorOnThisBlock := false
		fixedErrorOnThisBlock := false
		parityNeedsUpdate := info.Bad

		var failed []failedBlock
		for j := range pending {
			pending[j].active = false
		}

		for j, h := range handles {
			if h.Disk == nil {
				raidcodec.Zero(buffer[j])
				continue
			}

			blk := h.Disk.Get(i)

			if blk.State.HasInvalidParity() {
				failed = append(failed, failedBlock{index: j, size: a.BlockSize, block: blk})
				if blk.State != blockmodel.Chg {
					parityNeedsUpdate = true
				}
			}

			if !blk.State.HasFile() {
				raidcodec.Zero(buffer[j])
				continue
			}

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
					errorOnThisBlock = true
					continue
				}
				fileErrors++
				bail = true
				break
			}

			if h.StatMismatch(blk.File) {
				a.Log.Warning("file %s on disk %s changed during sync\n", blk.File.SubPath, h.Disk.Name)
				fileErrors++
				errorOnThisBlock = true
				continue
			}

			n, rerr := h.Read(blk.FilePos, buffer[j], a.BlockSize)
			if rerr != nil {
				if handle.IsEIO(rerr) {
					ioErrors++
					if ioErrors <= a.Opts.IOErrorLimit {
						a.Log.Warning("I/O error reading %s at block %d\n", blk.File.SubPath, i)
						ioErrorOnThisBlock = true
						continue
					}
					a.Log.Error("DANGER! too many I/O errors reading disk %s, stopping at block %d\n", h.Disk.Name, i)
					bail = true
					break
				}
				fileErrors++
				bail = true
				break
			}

			var fresh hashfn.Digest
			if rehash {
				a.PrevHash.Sum(&fresh, buffer[j][:n])
				var newDigest hashfn.Digest
				a.Hash.Sum(&newDigest, buffer[j][:n])
				pending[j] = pendingRehash{active: true, digest: newDigest}
			} else {
				a.Hash.Sum(&fresh, buffer[j][:n])
			}

			if n < a.BlockSize {
				raidcodec.Zero(buffer[j][n:])
			}

			if blk.State.HasUpdatedHash() {
				if fresh != blk.Hash {
					if blk.State.HasInvalidParity() {
						a.Log.Warning("unexpected data change on replacement block %s at block %d\n", blk.File.SubPath, i)
						fileErrors++
						errorOnThisBlock = true
						continue
					}
					a.Log.Warning("data error in file %s at block %d\n", blk.File.SubPath, i)
					failed = append(failed, failedBlock{index: j, size: n, block: blk})
					silentErrors++
					silentErrorOnThisBlock = true
					continue
				}
			} else {
				if !parityNeedsUpdate {
					if blk.Hash.IsReal() {
						if fresh != blk.Hash {
							parityNeedsUpdate = true
						}
					} else {
						parityNeedsUpdate = true
					}
				}
				blk.Hash = fresh
				h.Disk.Set(i, blk)
			}
		}

		if bail {
			break
		}

		if silentErrorOnThisBlock && !errorOnThisBlock && !ioErrorOnThisBlock {
			fixedErrorOnThisBlock = a.recover(handles, buffer, failed, scratchBase, diskmax, level, rehash, i, &ioErrors, &bail)
		}
		if bail {
			break
		}

		if !errorOnThisBlock && !ioErrorOnThisBlock && (!silentErrorOnThisBlock || fixedErrorOnThisBlock) {
			if parityNeedsUpdate {
				if err := a.Codec.Gen(diskmax, level, buffer); err != nil {
					return fmt.Errorf("raid gen at block %d: %w", i, err)
				}
				for l := 0; l < level; l++ {
					if err := a.parity[l].WriteBlock(i, buffer[diskmax+l], a.BlockSize); err != nil {
						if handle.IsEIO(err) {
							ioErrors++
							if ioErrors <= a.Opts.IOErrorLimit {
								ioErrorOnThisBlock = true
								continue
							}
						}
						a.Log.Error("DANGER! parity write error at block %d: %v\n", i, err)
						bail = true
						break
					}
				}
			}

			if bail {
				break
			}

			if !ioErrorOnThisBlock {
				for _, h := range handles {
					if h.Disk == nil {
						continue
					}
					blk := h.Disk.Get(i)
					switch blk.State {
					case blockmodel.Deleted:
						h.Disk.SetState(i, blockmodel.Empty)
					case blockmodel.Chg, blockmodel.Rep:
						blk.State = blockmodel.Blk
						h.Disk.Set(i, blk)
					}
				}
			}

			if parityNeedsUpdate && !silentErrorOnThisBlock && !ioErrorOnThisBlock {
				if rehash {
					for j, h := range handles {
						if h.Disk == nil || !pending[j].active {
							continue
						}
						blk := h.Disk.Get(i)
						blk.Hash = pending[j].digest
						h.Disk.Set(i, blk)
					}
				}
				a.Info.Set(i, blockmodel.Make(now().Unix(), false, false))
			}
		}

		if silentErrorOnThisBlock || ioErrorOnThisBlock {
			a.Info.Set(i, a.Info.Get(i).SetBad())
		}

		a.needWrite = true

		if a.Log.Progress(uint32(i), uint32(countmax-autosaveMissing), uint32(countmax)) {
			break
		}

		if (a.AutosaveSize != 0 && autosaveDone >= autosaveLimit && autosaveMissing >= autosaveLimit) ||
			(a.Opts.ForceAutosaveAt != 0 && a.Opts.ForceAutosaveAt == i) {
			autosaveDone = 0
			a.Log.Status("Autosaving...\n")
			if err := a.checkpoint(); err != nil {
				return fmt.Errorf("autosave at block %d: %w", i, err)
			}
		}
	}

	for _, h := range handles {
		if h.Disk != nil {
			h.Close()
		}
	}

	for l, h := range a.parity {
		if err := h.Sync(); err != nil {
			return fmt.Errorf("parity %s final sync: %w", a.ParityLevels[l].Name, err)
		}
	}

	if fileErrors+silentErrors+ioErrors != 0 {
		return fmt.Errorf("%d file errors, %d io errors, %d data errors", fileErrors, ioErrors, silentErrors)
	}
	return nil
}

// recover attempts to fix a silent-only failure at index i by RAID
// reconstruction. It returns true iff every failed BLK was recovered
// and matched its stored hash; it never writes a data disk.
func (a *Array) recover(handles []*handle.Handle, buffer [][]byte, failed []failedBlock, scratchBase, diskmax, level int, rehash bool, i blockmodel.Off, ioErrors *uint, bail *bool) bool {
	failedMap := make([]int, 0, level)
	somethingToRecover := false
	fullyMapped := true

	for _, fe := range failed {
		copy(buffer[scratchBase+fe.index], buffer[fe.index])

		if fe.block.State == blockmodel.Chg && fe.block.Hash.IsZero() {
			raidcodec.Zero(buffer[fe.index])
			continue
		}

		if fe.block.State == blockmodel.Blk {
			somethingToRecover = true
		}

		if len(failedMap) >= level {
			fullyMapped = false
			break
		}
		failedMap = append(failedMap, fe.index)
	}

	if !somethingToRecover || !fullyMapped {
		return false
	}

	for l := 0; l < level; l++ {
		if err := a.parity[l].ReadBlock(i, buffer[diskmax+l], a.BlockSize); err != nil {
			if handle.IsEIO(err) {
				*ioErrors = *ioErrors + 1
				if *ioErrors <= a.Opts.IOErrorLimit {
					return false
				}
			}
			a.Log.Error("DANGER! parity read error recovering block %d: %v\n", i, err)
			*bail = true
			return false
		}
	}

	if err := a.Codec.Rec(failedMap, diskmax, level, buffer); err != nil {
		a.Log.Warning("raid reconstruction failed at block %d: %v\n", i, err)
		return false
	}

	for _, fe := range failed {
		if fe.block.State == blockmodel.Blk {
			var digest hashfn.Digest
			hasher := a.Hash
			if rehash {
				hasher = a.PrevHash
			}
			hasher.Sum(&digest, buffer[fe.index][:fe.size])
			if digest != fe.block.Hash {
				return false
			}
			if fe.size < a.BlockSize {
				raidcodec.Zero(buffer[fe.index][fe.size:])
			}
		} else {
			copy(buffer[fe.index], buffer[scratchBase+fe.index])
		}
	}

	return true
}
