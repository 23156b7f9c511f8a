package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/engram/pkg/types"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefault_DecayOrdering(t *testing.T) {
	cfg := Default().Lifecycle
	// Errors decay slowest, ambient context fastest.
	order := []types.MemoryType{
		types.MemoryTypeError,
		types.MemoryTypeDecision,
		types.MemoryTypePattern,
		types.MemoryTypeLearning,
		types.MemoryTypeDocs,
		types.MemoryTypeContext,
	}
	for i := 1; i < len(order); i++ {
		assert.Less(t, cfg.DecayRate(order[i-1]), cfg.DecayRate(order[i]),
			"%s must decay slower than %s", order[i-1], order[i])
	}
	// Unknown types fall back to the context rate.
	assert.Equal(t, cfg.DecayRate(types.MemoryTypeContext), cfg.DecayRate("unknown"))
}

func TestDefault_JobCadences(t *testing.T) {
	s := Default().Scheduler
	assert.Equal(t, time.Hour, s.DecayInterval)
	// Purge runs on its own cadence, independent of archival decisions.
	assert.Equal(t, 24*time.Hour, s.PurgeInterval)
	assert.Equal(t, 10*time.Minute, s.MaxJobDuration)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engram.yaml")
	yaml := `
storage:
  engine: sqlite
  data_path: /var/lib/engram
provider:
  timeout: 10s
lifecycle:
  reinforcement_delta: 0.3
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("ENGRAM_ARCHIVE_THRESHOLD", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/engram", cfg.Storage.DataPath)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 0.3, cfg.Lifecycle.ReinforcementDelta)
	// Environment overrides file and defaults.
	assert.Equal(t, 0.25, cfg.Lifecycle.ArchiveThreshold)
	// Untouched sections keep their defaults.
	assert.Equal(t, 60.0, cfg.Retrieval.FusionK)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	// An empty path means defaults only.
	_, err = Load("")
	assert.NoError(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown engine", func(c *Config) { c.Storage.Engine = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Engine = "postgres" }},
		{"zero fusion k", func(c *Config) { c.Retrieval.FusionK = 0 }},
		{"delta out of range", func(c *Config) { c.Lifecycle.ReinforcementDelta = 1.5 }},
		{"non-increasing promotion", func(c *Config) { c.Lifecycle.PromoteSemantic = c.Lifecycle.PromoteStaging }},
		{"archive above staging", func(c *Config) { c.Lifecycle.ArchiveThreshold = 0.9 }},
		{"missing decay rate", func(c *Config) { delete(c.Lifecycle.DecayRates, types.MemoryTypeDocs) }},
		{"zero job duration", func(c *Config) { c.Scheduler.MaxJobDuration = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
