// =============================================================================
// pkg/types/settings.go - Tunable Backend Parameters
// =============================================================================

package types

// RocksDBSettings contains tunable RocksDB parameters for the indexed store.
//
// The chain-extension path writes one small batch per block, so the defaults
// favor point-read latency (bloom filters, shared block cache) over bulk
// write throughput. Auto-compaction stays enabled; manual compaction is a
// maintenance operation only.
type RocksDBSettings struct {
	WriteBufferSizeMB           int `toml:"write_buffer_size_mb"`
	MaxWriteBufferNumber        int `toml:"max_write_buffer_number"`
	MinWriteBufferNumberToMerge int `toml:"min_write_buffer_number_to_merge"`
	BlockCacheSizeMB            int `toml:"block_cache_size_mb"`
	BloomFilterBitsPerKey       int `toml:"bloom_filter_bits_per_key"`
	MaxOpenFiles                int `toml:"max_open_files"`
	MaxBackgroundJobs           int `toml:"max_background_jobs"`
	TargetFileSizeMB            int `toml:"target_file_size_mb"`
}

// DefaultRocksDBSettings returns the default tuning.
func DefaultRocksDBSettings() RocksDBSettings {
	return RocksDBSettings{
		WriteBufferSizeMB:           64,
		MaxWriteBufferNumber:        2,
		MinWriteBufferNumberToMerge: 1,
		BlockCacheSizeMB:            DefaultBlockCacheMB,
		BloomFilterBitsPerKey:       10,
		MaxOpenFiles:                1024,
		MaxBackgroundJobs:           4,
		TargetFileSizeMB:            64,
	}
}

// MDBXSettings contains tunable MDBX parameters for the indexed store.
type MDBXSettings struct {
	SizeLowerMB  int `toml:"size_lower_mb"`
	SizeUpperMB  int `toml:"size_upper_mb"`
	GrowthStepMB int `toml:"growth_step_mb"`
	PageSize     int `toml:"page_size"`
}

// DefaultMDBXSettings returns the default geometry.
func DefaultMDBXSettings() MDBXSettings {
	return MDBXSettings{
		SizeLowerMB:  64,
		SizeUpperMB:  1024 * 1024, // 1 TB ceiling
		GrowthStepMB: 1024,
		PageSize:     8192,
	}
}
