package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigHasSaneWorkerDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, WorkerKindLocal, cfg.Workers.Kind)
	assert.Equal(t, 4, cfg.Workers.Count)
	assert.Equal(t, 2048, cfg.Master.FatalFailureThreshold)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `[workers]
kind = "local"
count = 8
max_connections = 2048
retry_limit = 3
timeout_ms = 5000

[master]
fatal_failure_threshold = 4096
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Workers.Count)
	assert.Equal(t, 2048, cfg.Workers.MaxConnections)
	assert.Equal(t, 3, cfg.Workers.RetryLimit)
	assert.Equal(t, 5000, cfg.Workers.TimeoutMillis)
	assert.Equal(t, 4096, cfg.Master.FatalFailureThreshold)
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("PINGSWEEP_WORKERS_COUNT", "16")
	t.Setenv("PINGSWEEP_MASTER_FATAL_FAILURE_THRESHOLD", "10")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Workers.Count)
	assert.Equal(t, 10, cfg.Master.FatalFailureThreshold)
}

func TestValidateRejectsRemoteWorkerKind(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers.Kind = WorkerKindRemote

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote")
}

func TestValidateRejectsZeroWorkerCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers.Count = 0

	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Data.Dir = ""

	require.Error(t, cfg.Validate())
}

func TestTimeoutConvertsMillisToDuration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers.TimeoutMillis = 3500

	assert.Equal(t, 3500_000_000, int(cfg.Timeout()))
}
