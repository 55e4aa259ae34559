// Package agent implements AdaptiveAgent (spec.md §4.5 / C5): a
// multi-armed bandit that dispatches each search to one of a fixed set
// of retrieval strategies and updates its estimates from observed
// latency.
//
// State is persisted to a JSON sidecar the way the teacher's
// codec.Codec/wal family treats its on-disk format as a breaking-change
// boundary (a schema_version field guards against loading state from an
// incompatible version), and checkpoint writes are throttled with
// golang.org/x/time/rate the way resource.Controller throttles
// background IO.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"

	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/internal/fsx"
	"github.com/itisrohit/nanoindex/logging"
)

// Arm identifies one retrieval strategy.
type Arm string

const (
	ArmFlat            Arm = "flat"
	ArmIVFConservative Arm = "ivf_conservative"
	ArmIVFBalanced     Arm = "ivf_balanced"
	ArmIVFAggressive   Arm = "ivf_aggressive"
)

// ArmParams describes the IVF knobs bound to a non-flat arm. ArmFlat
// carries zero values and is interpreted by the caller as "use the flat
// path" rather than IVF with NProbe 0.
type ArmParams struct {
	NProbe   int
	MaxCodes int
}

// Arms lists the fixed arm set, in the order spec.md §4.5 defines them.
var Arms = []Arm{ArmFlat, ArmIVFConservative, ArmIVFBalanced, ArmIVFAggressive}

// Params returns the IVF knobs bound to arm, or the zero value for
// ArmFlat.
func Params(a Arm) ArmParams {
	switch a {
	case ArmIVFConservative:
		return ArmParams{NProbe: 5, MaxCodes: 10000}
	case ArmIVFBalanced:
		return ArmParams{NProbe: 10, MaxCodes: 50000}
	case ArmIVFAggressive:
		return ArmParams{NProbe: 20, MaxCodes: 100000}
	default:
		return ArmParams{}
	}
}

// Policy selects an arm-selection strategy.
type Policy int

const (
	// PolicyEpsilonGreedy explores uniformly at random with
	// probability Epsilon, otherwise exploits the best known mean
	// reward.
	PolicyEpsilonGreedy Policy = iota
	// PolicyUCB1 uses the upper-confidence-bound rule.
	PolicyUCB1
)

const schemaVersion = 1

// armStats is the persisted running statistics for one arm (spec.md §3,
// §6 agent_state.json: pulls, total_reward, avg_reward, avg_latency_ms).
type armStats struct {
	Pulls        int64   `json:"pulls"`
	TotalReward  float64 `json:"total_reward"`
	AvgReward    float64 `json:"avg_reward"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// state is the full persisted agent state.
type state struct {
	SchemaVersion int               `json:"schema_version"`
	Stats         map[Arm]*armStats `json:"statistics"`
	TotalUpdates  int64             `json:"total_pulls"`
}

func freshState() *state {
	s := &state{SchemaVersion: schemaVersion, Stats: make(map[Arm]*armStats, len(Arms))}
	for _, a := range Arms {
		s.Stats[a] = &armStats{}
	}
	return s
}

// Config configures a new Agent.
type Config struct {
	Policy          Policy
	Epsilon         float64 // used only by PolicyEpsilonGreedy; default 0.1
	CheckpointEvery int64   // write state every N updates; default 10
	CheckpointRate  float64 // max checkpoint writes per second; 0 disables throttling
	Seed            int64
}

// DefaultConfig returns spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{Policy: PolicyEpsilonGreedy, Epsilon: 0.1, CheckpointEvery: 10, CheckpointRate: 1}
}

// Agent is the adaptive bandit dispatcher. Safe for concurrent use.
type Agent struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	path string
	fs   fsx.FileSystem
	log  *logging.Logger

	st       *state
	limiter  *rate.Limiter
	dirty    int64 // updates since the last checkpoint
}

// Option configures Open.
type Option func(*options)

type options struct {
	fs     fsx.FileSystem
	logger *logging.Logger
}

// WithFileSystem overrides the filesystem used for the state file.
func WithFileSystem(fs fsx.FileSystem) Option { return func(o *options) { o.fs = fs } }

// WithLogger attaches a structured logger.
func WithLogger(l *logging.Logger) Option { return func(o *options) { o.logger = l } }

// Open loads agent_state.json from dir, or starts from a fresh
// zero-state if it is missing or carries a schema_version the running
// build does not recognize (spec.md §4.5: "a schema mismatch falls
// back to a fresh state rather than failing the call").
func Open(dir string, cfg Config, opts ...Option) (*Agent, error) {
	o := options{fs: fsx.Default, logger: logging.Noop()}
	for _, fn := range opts {
		fn(&o)
	}
	if cfg.Epsilon < 0 {
		cfg.Epsilon = DefaultConfig().Epsilon
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultConfig().CheckpointEvery
	}

	path := filepath.Join(dir, "agent_state.json")
	a := &Agent{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		path: path,
		fs:   o.fs,
		log:  logging.Safe(o.logger),
		st:   freshState(),
	}
	if cfg.CheckpointRate > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.CheckpointRate), 1)
	}

	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Agent) load() error {
	f, err := a.fs.OpenFile(a.path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.New(errs.KindStorageFatal, "agent.Open", err)
	}
	defer f.Close()

	var loaded state
	if err := json.NewDecoder(f).Decode(&loaded); err != nil {
		a.log.LogCheckpoint(context.Background(), a.path, false, fmt.Errorf("corrupt agent state, starting fresh: %w", err))
		return nil
	}
	if loaded.SchemaVersion != schemaVersion || loaded.Stats == nil {
		return nil
	}
	for _, arm := range Arms {
		if loaded.Stats[arm] == nil {
			loaded.Stats[arm] = &armStats{}
		}
	}
	a.st = &loaded
	return nil
}

// Select chooses an arm according to the configured policy.
func (a *Agent) Select(ctx context.Context) Arm {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.cfg.Policy {
	case PolicyUCB1:
		return a.selectUCB1Locked()
	default:
		return a.selectEpsilonGreedyLocked()
	}
}

// selectEpsilonGreedyLocked has no untried-arm sweep: an arm with zero
// pulls simply has an AvgReward of 0 and competes with the others on
// that basis, the way original_source's _epsilon_greedy_select does.
// Only UCB1's confidence bonus needs every arm pulled once first.
func (a *Agent) selectEpsilonGreedyLocked() Arm {
	if a.rng.Float64() < a.cfg.Epsilon {
		return Arms[a.rng.Intn(len(Arms))]
	}
	return a.bestMeanLocked()
}

func (a *Agent) bestMeanLocked() Arm {
	best := Arms[0]
	bestMean := a.st.Stats[best].AvgReward
	for _, arm := range Arms[1:] {
		if m := a.st.Stats[arm].AvgReward; m > bestMean {
			best, bestMean = arm, m
		}
	}
	return best
}

func (a *Agent) selectUCB1Locked() Arm {
	var total int64
	for _, arm := range Arms {
		if a.st.Stats[arm].Pulls == 0 {
			return arm
		}
		total += a.st.Stats[arm].Pulls
	}

	best := Arms[0]
	var bestScore float64 = math.Inf(-1)
	for _, arm := range Arms {
		s := a.st.Stats[arm]
		bonus := math.Sqrt(2 * math.Log(float64(total)) / float64(s.Pulls))
		score := s.AvgReward + bonus
		if score > bestScore {
			best, bestScore = arm, score
		}
	}
	return best
}

// Update records an observed latency for arm. Unknown arms are a
// no-op (spec.md §4.5), and so is a call whose ctx already carries a
// deadline/cancellation error: the search it reports on was itself
// abandoned, so its latency must not bias future arm selection.
// Reward is 1000/max(latency_ms, 1e-6), so faster searches score
// higher.
func (a *Agent) Update(ctx context.Context, arm Arm, latencyMs float64) {
	if ctx.Err() != nil {
		return
	}

	reward := 1000 / math.Max(latencyMs, 1e-6)

	a.mu.Lock()
	s, ok := a.st.Stats[arm]
	if !ok {
		a.mu.Unlock()
		return
	}
	s.Pulls++
	s.TotalReward += reward
	s.AvgReward = s.TotalReward / float64(s.Pulls)
	s.AvgLatencyMs += (latencyMs - s.AvgLatencyMs) / float64(s.Pulls)
	a.st.TotalUpdates++
	a.dirty++
	shouldCheckpoint := a.dirty >= a.cfg.CheckpointEvery
	if shouldCheckpoint {
		a.dirty = 0
	}
	a.mu.Unlock()

	a.log.LogAgentUpdate(ctx, string(arm), latencyMs, reward)

	if shouldCheckpoint {
		a.checkpoint(ctx)
	}
}

func (a *Agent) checkpoint(ctx context.Context) {
	if a.limiter != nil && !a.limiter.Allow() {
		a.log.LogCheckpoint(ctx, a.path, true, nil)
		return
	}
	if err := a.save(); err != nil {
		a.log.LogCheckpoint(ctx, a.path, false, err)
		return
	}
	a.log.LogCheckpoint(ctx, a.path, false, nil)
}

func (a *Agent) save() error {
	a.mu.Lock()
	snapshot := *a.st
	statsCopy := make(map[Arm]*armStats, len(a.st.Stats))
	for arm, s := range a.st.Stats {
		sc := *s
		statsCopy[arm] = &sc
	}
	snapshot.Stats = statsCopy
	a.mu.Unlock()

	tmp := a.path + ".tmp"
	f, err := a.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.New(errs.KindStorageFatal, "agent.save", err)
	}
	if err := json.NewEncoder(f).Encode(snapshot); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "agent.save", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errs.New(errs.KindStorageFatal, "agent.save", err)
	}
	if err := f.Close(); err != nil {
		return errs.New(errs.KindStorageFatal, "agent.save", err)
	}
	if err := a.fs.Rename(tmp, a.path); err != nil {
		return errs.New(errs.KindStorageFatal, "agent.save", err)
	}
	return nil
}

// Flush forces an immediate, unthrottled checkpoint write.
func (a *Agent) Flush() error {
	return a.save()
}

// Reset clears all arm statistics and writes the reset state out
// immediately.
func (a *Agent) Reset() error {
	a.mu.Lock()
	a.st = freshState()
	a.dirty = 0
	a.mu.Unlock()
	return a.save()
}

// ArmStats is a snapshot of one arm's learned bandit statistics
// (spec.md §3, §6 agent_state.json), as opposed to ArmParams, which is
// its fixed IVF configuration.
type ArmStats struct {
	Pulls        int64
	TotalReward  float64
	AvgReward    float64
	AvgLatencyMs float64
}

// Stats returns a snapshot of each arm's learned statistics (pulls,
// total/average reward, average latency), not its static IVF params —
// agent_stats() (spec.md §6) reports what the bandit has observed, not
// its configuration.
func (a *Agent) Stats() map[Arm]ArmStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[Arm]ArmStats, len(Arms))
	for _, arm := range Arms {
		s := a.st.Stats[arm]
		out[arm] = ArmStats{
			Pulls:        s.Pulls,
			TotalReward:  s.TotalReward,
			AvgReward:    s.AvgReward,
			AvgLatencyMs: s.AvgLatencyMs,
		}
	}
	return out
}
