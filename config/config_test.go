package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itisrohit/nanoindex/agent"
)

func TestDefaultValues(t *testing.T) {
	c := Default()
	assert.Equal(t, 10, c.DefaultNProbe)
	assert.Equal(t, 50000, c.DefaultMaxCodes)
	assert.Equal(t, agent.PolicyEpsilonGreedy, c.AgentPolicy)
}

func TestNewAppliesOptions(t *testing.T) {
	c := New(WithDim(128), WithDataDir("/tmp/x"), WithDefaultSearch(5, 1000))
	assert.Equal(t, 128, c.Dim)
	assert.Equal(t, "/tmp/x", c.DataDir)
	assert.Equal(t, 5, c.DefaultNProbe)
	assert.Equal(t, 1000, c.DefaultMaxCodes)
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("NANOINDEX_DIM", "64")
	t.Setenv("NANOINDEX_AGENT_ALGORITHM", "ucb1")
	t.Setenv("NANOINDEX_LOG_LEVEL", "debug")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64, c.Dim)
	assert.Equal(t, agent.PolicyUCB1, c.AgentPolicy)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("NANOINDEX_DIM", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadOptsOverrideEnv(t *testing.T) {
	t.Setenv("NANOINDEX_DIM", "64")
	c, err := Load(WithDim(256))
	require.NoError(t, err)
	assert.Equal(t, 256, c.Dim)
}
