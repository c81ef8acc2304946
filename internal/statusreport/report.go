// Package statusreport renders a completed or in-progress sync run as
// a machine-readable snapshot for the "status" command and for any
// external dashboard polling the array: block counts by state, the
// bad-block list, and when the last clean parity write happened.
package statusreport

import (
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
)

// BadBlock names one index flagged by the sync engine as needing a
// later fix/scrub pass.
type BadBlock struct {
	Index     blockmodel.Off     `json:"index"`
	Timestamp *timestamppb.Timestamp `json:"-"`
	When      time.Time          `json:"when"`
}

// Report summarizes an array's block-state distribution and bad-block
// list as of the moment it was built.
type Report struct {
	RunID        string         `json:"runId"`
	BlockSize    int            `json:"blockSize"`
	Level        int            `json:"level"`
	BlockCounts  map[string]int `json:"blockCounts"`
	BadBlocks    []BadBlock     `json:"badBlocks"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// Build walks every disk and the info array once to produce a Report.
func Build(runID string, blockSize, level int, disks []*blockmodel.Disk, info *blockmodel.InfoArray) *Report {
	r := &Report{
		RunID:       runID,
		BlockSize:   blockSize,
		Level:       level,
		BlockCounts: map[string]int{},
		GeneratedAt: time.Now(),
	}

	for _, d := range disks {
		for _, b := range d.Blocks {
			r.BlockCounts[b.State.String()]++
		}
	}

	for i := blockmodel.Off(0); i < info.Len(); i++ {
		entry := info.Get(i)
		if !entry.Bad {
			continue
		}
		ts := timestamppb.New(time.Unix(entry.Timestamp, 0))
		r.BadBlocks = append(r.BadBlocks, BadBlock{
			Index:     i,
			Timestamp: ts,
			When:      ts.AsTime(),
		})
	}

	return r
}
