package chainstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/types"
)

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{DataDir: "/data/chainstore"}
	require.NoError(t, cfg.Validate())

	require.Equal(t, BackendRocksDB, cfg.Backend)
	require.Equal(t, int64(types.DefaultSegmentTargetSize), cfg.SegmentTargetSize)
	require.True(t, cfg.CompressionEnabled())
	require.Equal(t, types.DefaultRocksDBSettings().WriteBufferSizeMB, cfg.RocksDB.WriteBufferSizeMB)
	require.Equal(t, types.DefaultMDBXSettings().PageSize, cfg.MDBX.PageSize)
}

func TestConfigValidation(t *testing.T) {
	require.Error(t, (&Config{}).Validate())
	require.Error(t, (&Config{DataDir: "/d", Backend: "leveldb"}).Validate())
	require.Error(t, (&Config{DataDir: "/d", SegmentTargetSize: 1024}).Validate())
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chainstore.toml")
	content := `
data_dir = "/data/chainstore"
backend = "mdbx"
segment_target_size = 67108864
compression = false

[rocksdb]
write_buffer_size_mb = 128

[mdbx]
page_size = 16384
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, BackendMDBX, cfg.Backend)
	require.Equal(t, int64(64*types.MB), cfg.SegmentTargetSize)
	require.False(t, cfg.CompressionEnabled())
	require.Equal(t, 128, cfg.RocksDB.WriteBufferSizeMB)
	require.Equal(t, 16384, cfg.MDBX.PageSize)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
