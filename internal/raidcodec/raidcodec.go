// Package raidcodec is the RAID redundancy primitive the sync engine
// drives: given diskmax data blocks it produces level parity blocks,
// and given up to level missing data blocks plus the parity it
// reconstructs them. It is a thin adapter over a Reed-Solomon encoder,
// keyed by the (diskmax, level) shape since that encoder must be built
// once per shape and reused.
package raidcodec

import (
	"fmt"
	"sync"

	"github.com/DurantVivado/reedsolomon"
)

// MaxLevel is the highest parity level this package supports, matching
// the six named levels (P, Q, R, S, T, U) of the array format.
const MaxLevel = 6

// Codec caches one Reed-Solomon encoder per (diskmax, level) shape seen
// during a sync run; building an encoder has a real setup cost
// (inversion matrices) that must not be paid per block index.
type Codec struct {
	mu   sync.Mutex
	encs map[shape]reedsolomon.Encoder
}

type shape struct {
	diskmax int
	level   int
}

// New returns an empty codec cache.
func New() *Codec {
	return &Codec{encs: make(map[shape]reedsolomon.Encoder)}
}

func (c *Codec) encoder(diskmax, level int) (reedsolomon.Encoder, error) {
	if level < 1 || level > MaxLevel {
		return nil, fmt.Errorf("raidcodec: level %d out of range [1,%d]", level, MaxLevel)
	}

	s := shape{diskmax, level}

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encs[s]; ok {
		return enc, nil
	}

	enc, err := reedsolomon.New(diskmax, level,
		reedsolomon.WithAutoGoroutines(64*1024),
		reedsolomon.WithCauchyMatrix(),
		reedsolomon.WithInversionCache(true),
	)
	if err != nil {
		return nil, err
	}

	c.encs[s] = enc
	return enc, nil
}

// Gen computes the level parity blocks of buffer[diskmax:diskmax+level]
// from the diskmax data blocks in buffer[0:diskmax]. buffer may be
// longer than diskmax+level; only that prefix is touched.
func (c *Codec) Gen(diskmax, level int, buffer [][]byte) error {
	enc, err := c.encoder(diskmax, level)
	if err != nil {
		return err
	}
	return enc.Encode(buffer[:diskmax+level])
}

// Rec reconstructs the data shards named by failedMap (indices into
// [0,diskmax)) from the surviving data and the level parity blocks.
// len(failedMap) must not exceed level. The reconstructed content is
// copied back into the original buffer slots named by failedMap.
func (c *Codec) Rec(failedMap []int, diskmax, level int, buffer [][]byte) error {
	if len(failedMap) == 0 {
		return nil
	}
	if len(failedMap) > level {
		return fmt.Errorf("raidcodec: %d failures exceed level %d", len(failedMap), level)
	}

	enc, err := c.encoder(diskmax, level)
	if err != nil {
		return err
	}

	shards := make([][]byte, diskmax+level)
	copy(shards, buffer[:diskmax+level])

	missing := make(map[int]bool, len(failedMap))
	for _, idx := range failedMap {
		missing[idx] = true
		shards[idx] = nil
	}

	if err := enc.Reconstruct(shards); err != nil {
		return err
	}

	for idx := range missing {
		copy(buffer[idx], shards[idx])
	}
	return nil
}

// Zero fills buf with the zero block used to prime the last scratch
// slot of the sync buffer vector; the data path never reads the
// trailing slot's content, only its address, so zeroing is sufficient.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
