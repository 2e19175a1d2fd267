package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PG_HOST", "localhost")
	t.Setenv("PG_USER", "arena")
	t.Setenv("PG_PASSWORD", "secret")
	t.Setenv("PG_DATABASE", "arena")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "jwt-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "codearena", cfg.Name)
	assert.Equal(t, 300*time.Second, cfg.Runtime.DefaultDuration)
	assert.Equal(t, "medium", cfg.Runtime.DefaultDifficulty)
	assert.Equal(t, "beginner", cfg.Runtime.DefaultTier)
	assert.Equal(t, uint64(60), cfg.Sandbox.PollAttempts)
	assert.Equal(t, time.Second, cfg.Sandbox.PollInterval)
	assert.Equal(t, 512000, cfg.Sandbox.MemoryLimitKB)
	assert.Equal(t, 5, cfg.Leaderboard.HostEndPenalty)
	assert.Equal(t, "lb:updates", cfg.Leaderboard.Channel)
	assert.Empty(t, cfg.Archive.Endpoint)
	assert.Contains(t, cfg.Postgres.DSN(), "dbname=arena")
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SANDBOX_POLL_ATTEMPTS", "5")
	t.Setenv("ROUND_DEFAULT_DURATION", "90s")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), cfg.Sandbox.PollAttempts)
	assert.Equal(t, 90*time.Second, cfg.Runtime.DefaultDuration)
}
