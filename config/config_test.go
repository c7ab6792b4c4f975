package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groc-prog/cache-nest/config"
)

func TestDefaults_MemoryDriverQuarterOfRAMRecoveryDisabled(t *testing.T) {
	cfg := config.Defaults()

	assert.Equal(t, "25%", cfg.Drivers.Memory.MaxSize)
	assert.True(t, cfg.Drivers.Memory.EvictFromOthers)
	assert.False(t, cfg.Drivers.Memory.Recovery.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"drivers": {
			"memory": { "maxSize": "1048576", "evictFromOthers": false },
			"fileSystem": { "maxSize": "2097152", "mountPath": "`+dir+`" }
		}
	}`), 0o644))

	cfg, err := config.Load(path, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "1048576", cfg.Drivers.Memory.MaxSize)
	assert.False(t, cfg.Drivers.Memory.EvictFromOthers)
	assert.Equal(t, "2097152", cfg.Drivers.FileSystem.MaxSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"drivers": {
			"memory": { "maxSize": "1048576" },
			"fileSystem": { "maxSize": "1048576", "mountPath": "`+dir+`" }
		}
	}`), 0o644))

	t.Setenv("CACHE_NEST_DRIVERS_MEMORY_MAXSIZE", "4194304")

	cfg, err := config.Load(path, "CACHE_NEST_", nil)
	require.NoError(t, err)

	assert.Equal(t, "4194304", cfg.Drivers.Memory.MaxSize)
}
