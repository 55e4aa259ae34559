// Package config assembles NanoIndex's runtime configuration: the
// functional-options struct used by library callers, plus a Load that
// reads NANOINDEX_* environment variables for the CLI entry point. The
// options pattern itself is grounded on the teacher's root options.go
// (WithCodec/WithNumShards/...); env-loading has no ecosystem analogue
// in the example pack, so it is plain os.Getenv parsing (documented
// here rather than reached for a third-party flags/env library the
// corpus never imports).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/itisrohit/nanoindex/agent"
)

// Config holds every tunable NanoIndex needs to open a store, train an
// IVF index, and dispatch searches through the adaptive agent.
type Config struct {
	DataDir         string
	Dim             int
	InitialCapacity int

	DefaultNProbe   int
	DefaultMaxCodes int

	AgentPolicy          agent.Policy
	AgentEpsilon         float64
	AgentCheckpointEvery int64

	BackupStore       string // "local", "s3", or "minio"
	BackupBucket      string
	BackupPrefix      string
	BackupCommitTable string // DynamoDB table for the commit pointer; empty disables it

	LogFormat string // "json" or "text"
	LogLevel  slog.Level
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithDataDir sets the directory DataStore, the IVF index, and the
// agent's state file are rooted under.
func WithDataDir(dir string) Option { return func(c *Config) { c.DataDir = dir } }

// WithDim sets the fixed vector dimension.
func WithDim(dim int) Option { return func(c *Config) { c.Dim = dim } }

// WithInitialCapacity sets the row capacity used when creating a brand
// new store.
func WithInitialCapacity(n int) Option { return func(c *Config) { c.InitialCapacity = n } }

// WithDefaultSearch records IVF nprobe/max_codes defaults on Config.
// App.Search does not read them: a zero per-call value uses the
// dispatched arm's bound parameters.
func WithDefaultSearch(nprobe, maxCodes int) Option {
	return func(c *Config) { c.DefaultNProbe, c.DefaultMaxCodes = nprobe, maxCodes }
}

// WithAgentPolicy sets the bandit policy and exploration rate.
func WithAgentPolicy(policy agent.Policy, epsilon float64) Option {
	return func(c *Config) { c.AgentPolicy, c.AgentEpsilon = policy, epsilon }
}

// WithAgentCheckpointEvery sets how many Update calls elapse between
// agent state checkpoints.
func WithAgentCheckpointEvery(n int64) Option {
	return func(c *Config) { c.AgentCheckpointEvery = n }
}

// WithBackup configures the optional backup/export destination.
func WithBackup(store, bucket, prefix, commitTable string) Option {
	return func(c *Config) {
		c.BackupStore, c.BackupBucket, c.BackupPrefix, c.BackupCommitTable = store, bucket, prefix, commitTable
	}
}

// WithLogging sets the log encoding and minimum level.
func WithLogging(format string, level slog.Level) Option {
	return func(c *Config) { c.LogFormat, c.LogLevel = format, level }
}

// Default returns spec.md's documented defaults.
func Default() Config {
	return Config{
		DataDir:              "./data",
		Dim:                  0,
		InitialCapacity:      1024,
		DefaultNProbe:        10,
		DefaultMaxCodes:      50000,
		AgentPolicy:          agent.PolicyEpsilonGreedy,
		AgentEpsilon:         0.1,
		AgentCheckpointEvery: 10,
		LogFormat:            "text",
		LogLevel:             slog.LevelInfo,
	}
}

// New builds a Config from Default plus opts.
func New(opts ...Option) Config {
	c := Default()
	for _, fn := range opts {
		fn(&c)
	}
	return c
}

// Load builds a Config from Default, overridden by any NANOINDEX_*
// environment variables that are set, and finally by opts (so
// programmatic overrides always win over the environment).
//
// Recognized variables: NANOINDEX_DATA_DIR, NANOINDEX_DIM,
// NANOINDEX_INITIAL_CAPACITY, NANOINDEX_DEFAULT_NPROBE,
// NANOINDEX_DEFAULT_MAX_CODES, NANOINDEX_AGENT_ALGORITHM (epsilon-greedy|ucb1),
// NANOINDEX_AGENT_EPSILON, NANOINDEX_CHECKPOINT_EVERY,
// NANOINDEX_BACKUP_STORE, NANOINDEX_BACKUP_BUCKET, NANOINDEX_BACKUP_PREFIX,
// NANOINDEX_BACKUP_COMMIT_TABLE, NANOINDEX_LOG_FORMAT, NANOINDEX_LOG_LEVEL.
func Load(opts ...Option) (Config, error) {
	c := Default()

	if v, ok := os.LookupEnv("NANOINDEX_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, err := envInt("NANOINDEX_DIM"); err != nil {
		return Config{}, err
	} else if v != nil {
		c.Dim = *v
	}
	if v, err := envInt("NANOINDEX_INITIAL_CAPACITY"); err != nil {
		return Config{}, err
	} else if v != nil {
		c.InitialCapacity = *v
	}
	if v, err := envInt("NANOINDEX_DEFAULT_NPROBE"); err != nil {
		return Config{}, err
	} else if v != nil {
		c.DefaultNProbe = *v
	}
	if v, err := envInt("NANOINDEX_DEFAULT_MAX_CODES"); err != nil {
		return Config{}, err
	} else if v != nil {
		c.DefaultMaxCodes = *v
	}
	if v, ok := os.LookupEnv("NANOINDEX_AGENT_ALGORITHM"); ok {
		switch v {
		case "ucb1":
			c.AgentPolicy = agent.PolicyUCB1
		case "epsilon-greedy", "epsilon_greedy":
			c.AgentPolicy = agent.PolicyEpsilonGreedy
		default:
			return Config{}, fmt.Errorf("config: unknown NANOINDEX_AGENT_ALGORITHM %q", v)
		}
	}
	if v, err := envFloat("NANOINDEX_AGENT_EPSILON"); err != nil {
		return Config{}, err
	} else if v != nil {
		c.AgentEpsilon = *v
	}
	if v, err := envInt("NANOINDEX_CHECKPOINT_EVERY"); err != nil {
		return Config{}, err
	} else if v != nil {
		c.AgentCheckpointEvery = int64(*v)
	}
	if v, ok := os.LookupEnv("NANOINDEX_BACKUP_STORE"); ok {
		c.BackupStore = v
	}
	if v, ok := os.LookupEnv("NANOINDEX_BACKUP_BUCKET"); ok {
		c.BackupBucket = v
	}
	if v, ok := os.LookupEnv("NANOINDEX_BACKUP_PREFIX"); ok {
		c.BackupPrefix = v
	}
	if v, ok := os.LookupEnv("NANOINDEX_BACKUP_COMMIT_TABLE"); ok {
		c.BackupCommitTable = v
	}
	if v, ok := os.LookupEnv("NANOINDEX_LOG_FORMAT"); ok {
		c.LogFormat = v
	}
	if v, ok := os.LookupEnv("NANOINDEX_LOG_LEVEL"); ok {
		lvl, err := parseLevel(v)
		if err != nil {
			return Config{}, err
		}
		c.LogLevel = lvl
	}

	for _, fn := range opts {
		fn(&c)
	}
	return c, nil
}

func envInt(name string) (*int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("config: %s=%q is not an integer: %w", name, v, err)
	}
	return &n, nil
}

func envFloat(name string) (*float64, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("config: %s=%q is not a float: %w", name, v, err)
	}
	return &f, nil
}

func parseLevel(v string) (slog.Level, error) {
	switch v {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown NANOINDEX_LOG_LEVEL %q", v)
	}
}
