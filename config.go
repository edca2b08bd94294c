// =============================================================================
// config.go - Engine Configuration
// =============================================================================
//
// Configuration for the chain storage engine. The Config struct can be
// populated programmatically or loaded from a TOML file; Validate fills in
// every zero field with its default, so an empty Config plus a data
// directory is a working setup.
//
// Directory layout under DataDir:
//
//   blocks/       record log segments for raw block bytes
//   operations/   record log segments for raw operation bytes
//   actions/      record log segments for raw context action bytes
//   index/        indexed store (RocksDB or MDBX) holding every key space
//
// =============================================================================

package chainstore

import (
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/types"
)

// Backend selects the indexed-store implementation.
const (
	BackendRocksDB = "rocksdb"
	BackendMDBX    = "mdbx"
	BackendMemory  = "memory"
)

// Config holds every tunable of the engine.
type Config struct {
	// DataDir is the root directory of the store. Required.
	DataDir string `toml:"data_dir"`

	// Backend selects the indexed-store implementation:
	// "rocksdb" (default), "mdbx", or "memory" (tests only, not durable).
	Backend string `toml:"backend"`

	// ReadOnly opens the store without a write handle and skips recovery
	// truncation.
	ReadOnly bool `toml:"read_only"`

	// SegmentTargetSize is the size at which a record log segment is
	// sealed. Defaults to 256 MB.
	SegmentTargetSize int64 `toml:"segment_target_size"`

	// Compression enables per-record zstd compression in the record logs.
	// Defaults to true.
	Compression *bool `toml:"compression"`

	RocksDB types.RocksDBSettings `toml:"rocksdb"`
	MDBX    types.MDBXSettings    `toml:"mdbx"`
}

// LoadConfig reads a TOML configuration file and validates it.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and fills defaults into zero fields.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.Backend == "" {
		c.Backend = BackendRocksDB
	}
	switch c.Backend {
	case BackendRocksDB, BackendMDBX, BackendMemory:
	default:
		return errors.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.SegmentTargetSize == 0 {
		c.SegmentTargetSize = types.DefaultSegmentTargetSize
	}
	if c.SegmentTargetSize < types.MB {
		return errors.Errorf("config: segment_target_size %d below 1 MB", c.SegmentTargetSize)
	}
	if c.Compression == nil {
		t := true
		c.Compression = &t
	}

	defRocks := types.DefaultRocksDBSettings()
	if c.RocksDB.WriteBufferSizeMB == 0 {
		c.RocksDB.WriteBufferSizeMB = defRocks.WriteBufferSizeMB
	}
	if c.RocksDB.MaxWriteBufferNumber == 0 {
		c.RocksDB.MaxWriteBufferNumber = defRocks.MaxWriteBufferNumber
	}
	if c.RocksDB.MinWriteBufferNumberToMerge == 0 {
		c.RocksDB.MinWriteBufferNumberToMerge = defRocks.MinWriteBufferNumberToMerge
	}
	if c.RocksDB.BlockCacheSizeMB == 0 {
		c.RocksDB.BlockCacheSizeMB = defRocks.BlockCacheSizeMB
	}
	if c.RocksDB.BloomFilterBitsPerKey == 0 {
		c.RocksDB.BloomFilterBitsPerKey = defRocks.BloomFilterBitsPerKey
	}
	if c.RocksDB.MaxOpenFiles == 0 {
		c.RocksDB.MaxOpenFiles = defRocks.MaxOpenFiles
	}
	if c.RocksDB.MaxBackgroundJobs == 0 {
		c.RocksDB.MaxBackgroundJobs = defRocks.MaxBackgroundJobs
	}
	if c.RocksDB.TargetFileSizeMB == 0 {
		c.RocksDB.TargetFileSizeMB = defRocks.TargetFileSizeMB
	}

	defMDBX := types.DefaultMDBXSettings()
	if c.MDBX.SizeLowerMB == 0 {
		c.MDBX.SizeLowerMB = defMDBX.SizeLowerMB
	}
	if c.MDBX.SizeUpperMB == 0 {
		c.MDBX.SizeUpperMB = defMDBX.SizeUpperMB
	}
	if c.MDBX.GrowthStepMB == 0 {
		c.MDBX.GrowthStepMB = defMDBX.GrowthStepMB
	}
	if c.MDBX.PageSize == 0 {
		c.MDBX.PageSize = defMDBX.PageSize
	}
	return nil
}

// CompressionEnabled reports the effective compression setting.
func (c *Config) CompressionEnabled() bool {
	return c.Compression == nil || *c.Compression
}

// Directory layout helpers.

func (c *Config) blocksDir() string     { return filepath.Join(c.DataDir, "blocks") }
func (c *Config) operationsDir() string { return filepath.Join(c.DataDir, "operations") }
func (c *Config) actionsDir() string    { return filepath.Join(c.DataDir, "actions") }
func (c *Config) indexDir() string      { return filepath.Join(c.DataDir, "index") }
