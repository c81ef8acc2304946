// Package content is the on-disk checkpoint (the "content file") that
// the sync engine treats as an opaque collaborator: it only ever calls
// Store.Save, never parses the format itself. The checkpoint is the
// durability anchor described in the engine's ordering guarantees — it
// must never be written before every parity level has been flushed.
//
// The store is a small embedded database (one bucket, one key) rather
// than the original tool's hand-rolled streaming binary format with a
// trailing CRC; the integrity goal is the same, achieved here by
// pairing a CRC32 of the encoded snapshot with Snappy-compressed gob
// encoding instead of a custom parser.
package content

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
	"go.etcd.io/bbolt"

	"github.com/Zealsathish/snapraid/internal/blockmodel"
)

var bucketName = []byte("content")
var snapshotKey = []byte("snapshot")

// DiskSnapshot is the persisted form of one data disk.
type DiskSnapshot struct {
	Name   string
	Dir    string
	Blocks []blockmodel.Block
}

// Snapshot is everything state_write persists: every disk's block
// array and the shared info array. Parity file bytes and the RAID
// codec's working set are never part of it.
type Snapshot struct {
	BlockSize int
	Level     int
	Disks     []DiskSnapshot
	Info      []blockmodel.Info
}

// Store is an open content-file checkpoint.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens (creating if absent) the content file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads back the last saved snapshot, or (nil, nil) if none was
// ever written.
func (s *Store) Load() (*Snapshot, error) {
	var payload []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(snapshotKey)
		if v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}

	if len(payload) < 4 {
		return nil, fmt.Errorf("content: truncated snapshot")
	}
	sum := crc32.ChecksumIEEE(payload[4:])
	stored := uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
	if sum != stored {
		return nil, fmt.Errorf("content: crc mismatch, checkpoint is corrupt")
	}

	raw, err := snappy.Decode(nil, payload[4:])
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save is the engine's state_write: it atomically replaces the
// previously persisted snapshot. The caller must have already
// fsync'd every parity level.
func (s *Store) Save(snap *Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return err
	}
	compressed := snappy.Encode(nil, buf.Bytes())

	sum := crc32.ChecksumIEEE(compressed)
	payload := make([]byte, 4+len(compressed))
	payload[0] = byte(sum >> 24)
	payload[1] = byte(sum >> 16)
	payload[2] = byte(sum >> 8)
	payload[3] = byte(sum)
	copy(payload[4:], compressed)

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(snapshotKey, payload)
	})
}
