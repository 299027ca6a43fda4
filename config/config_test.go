package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFillsInSaneThresholds(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10, cfg.Pool.MaxConnections)
	assert.Equal(t, uint32(5), cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.ConflictSoftTimeout)
}

func TestNewAppliesOptionsOverDefault(t *testing.T) {
	cfg := New(WithStaleAfter(2 * time.Minute))
	assert.Equal(t, 2*time.Minute, cfg.StaleAfter)
	assert.Equal(t, 10, cfg.Pool.MaxConnections, "unrelated defaults must survive an unrelated option")
}

func TestLoadFileOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 200\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.PageSize)
	assert.Equal(t, 10, cfg.Pool.MaxConnections, "fields absent from the file keep their default")
}

func TestLoadFileMissingReturnsDefaultAndError(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, Default().Pool, cfg.Pool)
}

func TestLoadViperOverlaysYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_pages_in_memory: 3\n"), 0o644))

	cfg, err := LoadViper(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxPagesInMemory)
}

func TestWatchFiresOnDebouncedWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 50\n"), 0o644))

	changes := make(chan StoreConfig, 4)
	stop, err := Watch(path, 20*time.Millisecond, func(cfg StoreConfig, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("page_size: 77\n"), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, 77, cfg.PageSize)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a debounced config reload after the write")
	}
}
