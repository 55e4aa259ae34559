// Package nanoindex wires DataStore, IVFIndex, the adaptive agent, and
// SearchService into a single App, the way the teacher's root vecgo.go
// bundles its engine/index/metadata components behind one Vecgo[T]
// handle. There is no package-level singleton: every dependency is
// constructed explicitly in Open and held on App.
package nanoindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/itisrohit/nanoindex/agent"
	"github.com/itisrohit/nanoindex/config"
	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/index/ivf"
	"github.com/itisrohit/nanoindex/internal/kmeans"
	"github.com/itisrohit/nanoindex/logging"
	"github.com/itisrohit/nanoindex/search"
	"github.com/itisrohit/nanoindex/store"
)

func ivfPath(dataDir string) string { return filepath.Join(dataDir, "ivf.bin") }

// App bundles one store, one IVF index, one adaptive agent, and the
// search service dispatching between them.
type App struct {
	cfg   config.Config
	Store *store.DataStore
	Index *ivf.Index
	Agent *agent.Agent
	Svc   *search.Service
	Log   *logging.Logger
}

// Open constructs an App rooted at cfg.DataDir for vectors of
// cfg.Dim dimension, opening (or creating) the store and agent state
// and loading the IVF index from ivf.bin when that file exists (the
// index starts untrained otherwise).
func Open(cfg config.Config) (*App, error) {
	if cfg.Dim <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "nanoindex.Open", fmt.Errorf("dim must be > 0"))
	}

	var log *logging.Logger
	if cfg.LogFormat == "json" {
		log = logging.NewJSON(cfg.LogLevel)
	} else {
		log = logging.NewText(cfg.LogLevel)
	}

	ds, err := store.Open(cfg.DataDir, cfg.Dim,
		store.WithLogger(log),
		store.WithInitialCapacity(cfg.InitialCapacity))
	if err != nil {
		return nil, err
	}

	idx := ivf.New(cfg.Dim, log)
	if err := idx.Load(ivfPath(cfg.DataDir)); err != nil {
		ds.Close()
		return nil, err
	}

	ag, err := agent.Open(cfg.DataDir, agent.Config{
		Policy:          cfg.AgentPolicy,
		Epsilon:         cfg.AgentEpsilon,
		CheckpointEvery: cfg.AgentCheckpointEvery,
	}, agent.WithLogger(log))
	if err != nil {
		ds.Close()
		return nil, err
	}

	svc := search.New(ds, ds, idx, ag, log)

	return &App{cfg: cfg, Store: ds, Index: idx, Agent: ag, Svc: svc, Log: log}, nil
}

// Add appends vectors with external IDs to the store.
func (a *App) Add(ctx context.Context, vectors [][]float32, ids []int64) ([]int, error) {
	return a.Store.Add(ctx, vectors, ids)
}

// Train (re)builds the IVF index over the store's current contents and
// persists the resulting snapshot to ivf.bin.
func (a *App) Train(ctx context.Context, k int, cfg kmeans.Config) (int, error) {
	n, err := a.Index.Train(ctx, a.Store, k, cfg)
	if err != nil {
		return 0, err
	}
	if err := a.Index.Save(ivfPath(a.cfg.DataDir)); err != nil {
		return 0, err
	}
	return n, nil
}

// Search resolves the topK nearest IDs to query. p.NProbe/p.MaxCodes
// are passed through untouched: a zero value means "use whatever the
// dispatched arm is bound to", not "substitute the config default" —
// forcing Config's defaults in here would override every arm's own
// tuned (nprobe, max_codes) pair and collapse ivf_conservative/
// balanced/aggressive down to one setting, defeating arm
// differentiation. Only a caller-supplied nonzero value overrides the
// arm's bound params (search.Service.dispatch).
func (a *App) Search(ctx context.Context, query []float32, topK int, p search.Params) ([]search.Hit, error) {
	return a.Svc.Search(ctx, query, topK, p)
}

// Reset clears the store, untrains the IVF index, and resets the
// agent's bandit statistics.
func (a *App) Reset() error {
	if err := a.Store.Reset(); err != nil {
		return err
	}
	a.Index.Reset()
	if err := os.Remove(ivfPath(a.cfg.DataDir)); err != nil && !os.IsNotExist(err) {
		return errs.New(errs.KindStorageFatal, "nanoindex.Reset", err)
	}
	return a.Agent.Reset()
}

// Close releases the store's backing mappings. The App must not be
// used after Close.
func (a *App) Close() error {
	return a.Store.Close()
}
