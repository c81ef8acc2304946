// Package arrayconfig loads the array's configuration: which
// directories are data disks, where each parity level lives, the
// block size and hash seeds. Parsing this file is explicitly an
// external collaborator's job with respect to the sync engine, but a
// runnable CLI needs some loader, so this one is deliberately thin.
package arrayconfig

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Zealsathish/snapraid/internal/hashfn"
	"github.com/Zealsathish/snapraid/internal/syncengine"
)

// Config is the on-disk (JSON) array description.
type Config struct {
	BlockSize       int      `json:"blockSize"`
	Level           int      `json:"level"`
	Disks           []string `json:"disks"`  // "name=dir" pairs
	Parity          []string `json:"parity"` // "name=path" pairs, one per level
	ContentPath     string   `json:"content"`
	AutosaveSize    int64    `json:"autosaveBytes"`
	HashSeedHex     string   `json:"hashSeed"`     // 16 raw bytes, hex-encoded
	PrevHashSeedHex string   `json:"prevHashSeed"` // same, for rehash migrations
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.BlockSize <= 0 {
		return nil, fmt.Errorf("config: blockSize must be positive")
	}
	if c.Level < 1 || c.Level > 6 {
		return nil, fmt.Errorf("config: level must be in [1,6]")
	}
	if len(c.Parity) != c.Level {
		return nil, fmt.Errorf("config: %d parity paths configured for level %d", len(c.Parity), c.Level)
	}
	if _, err := seedOf(c.HashSeedHex); err != nil {
		return nil, err
	}
	if _, err := seedOf(c.PrevHashSeedHex); err != nil {
		return nil, err
	}
	return &c, nil
}

func seedOf(hexStr string) (hashfn.Seed, error) {
	var s hashfn.Seed
	if hexStr == "" {
		return s, nil
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return s, fmt.Errorf("config: invalid hash seed %q: %w", hexStr, err)
	}
	if len(b) != len(s) {
		return s, fmt.Errorf("config: hash seed must decode to %d bytes, got %d", len(s), len(b))
	}
	copy(s[:], b)
	return s, nil
}

// ParityLevels builds the syncengine.ParityLevel list in configured
// order.
func (c *Config) ParityLevels() []syncengine.ParityLevel {
	levels := make([]syncengine.ParityLevel, 0, len(c.Parity))
	for _, entry := range c.Parity {
		name, path := splitPair(entry)
		levels = append(levels, syncengine.ParityLevel{Name: name, Path: path})
	}
	return levels
}

func splitPair(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:]
		}
	}
	return s, s
}

// HashSeed returns the configured current-algorithm seed. Load already
// validated that it decodes cleanly, so the error is never non-nil
// here.
func (c *Config) HashSeed() hashfn.Seed {
	s, _ := seedOf(c.HashSeedHex)
	return s
}

// PrevHashSeed returns the configured previous-algorithm seed, used
// only while a rehash migration is in progress.
func (c *Config) PrevHashSeed() hashfn.Seed {
	s, _ := seedOf(c.PrevHashSeedHex)
	return s
}
