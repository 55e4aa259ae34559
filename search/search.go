// Package search implements SearchService (spec.md §4.6): the glue
// between DataStore, IVFIndex, and the adaptive agent. It dispatches
// each query to the arm the agent selects, runs the flat brute-force
// path itself (shared internal/queue.TopK, distance.L2SqBatch), and
// feeds the observed latency back to the agent, the way the teacher's
// top-level Vecgo.KNNSearch/BruteSearch pair dispatches between an
// index search and a brute-force fallback.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/itisrohit/nanoindex/agent"
	"github.com/itisrohit/nanoindex/distance"
	"github.com/itisrohit/nanoindex/errs"
	"github.com/itisrohit/nanoindex/index/ivf"
	"github.com/itisrohit/nanoindex/internal/queue"
	"github.com/itisrohit/nanoindex/logging"
)

// dataSource is the slice of DataStore Service needs.
type dataSource interface {
	RLock()
	RUnlock()
	Dim() int
	Len() int
	AllVectorsLocked() []float32
	NormsSqLocked() []float32
}

// idResolver resolves a row index back to its external ID.
type idResolver interface {
	RowToID(row int) (int64, bool)
}

// Hit is a single search result: the external ID, its distance to the
// query, and the row it resolved from.
type Hit struct {
	ID       int64
	Row      int
	Distance float32
}

// Params overrides the agent's arm choice and its bound IVF knobs for
// a single call. A zero Params lets the agent choose freely.
type Params struct {
	ForceArm agent.Arm
	NProbe   int // overrides the arm's NProbe when > 0
	MaxCodes int // overrides the arm's MaxCodes when > 0
}

// Service dispatches searches across the flat and IVF paths, guided by
// an AdaptiveAgent.
type Service struct {
	ds    dataSource
	ids   idResolver
	index *ivf.Index
	agent *agent.Agent
	log   *logging.Logger
}

// New returns a Service wiring ds, ids, index, and agent together. Any
// of index/ag may be nil: a nil index makes non-flat arms behave like
// flat, and a nil agent makes every call without a ForceArm use the
// flat path.
func New(ds dataSource, ids idResolver, index *ivf.Index, ag *agent.Agent, log *logging.Logger) *Service {
	return &Service{ds: ds, ids: ids, index: index, agent: ag, log: logging.Safe(log)}
}

// Search resolves topK nearest external IDs to query.
func (s *Service) Search(ctx context.Context, query []float32, topK int, p Params) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindTimeout, "search.Search", err)
	}
	if topK <= 0 {
		return nil, errs.New(errs.KindInvalidInput, "search.Search", fmt.Errorf("top_k must be > 0"))
	}
	if len(query) != s.ds.Dim() {
		return nil, errs.New(errs.KindInvalidInput, "search.Search",
			fmt.Errorf("query dim %d, want %d", len(query), s.ds.Dim()))
	}

	arm := p.ForceArm
	if arm == "" {
		arm = s.selectArm(ctx)
	}

	start := time.Now()
	rows, err := s.dispatch(ctx, query, topK, arm, p)
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	if s.agent != nil && p.ForceArm == "" {
		s.agent.Update(ctx, arm, latencyMs)
	}
	s.log.LogSearch(ctx, string(arm), topK, len(rows), latencyMs, err)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		id, ok := s.ids.RowToID(r.Row)
		if !ok {
			continue
		}
		hits = append(hits, Hit{ID: id, Row: r.Row, Distance: r.Distance})
	}
	return hits, nil
}

func (s *Service) selectArm(ctx context.Context) agent.Arm {
	if s.agent == nil {
		return agent.ArmFlat
	}
	return s.agent.Select(ctx)
}

type rowResult struct {
	Row      int
	Distance float32
}

func (s *Service) dispatch(ctx context.Context, query []float32, topK int, arm agent.Arm, p Params) ([]rowResult, error) {
	if arm == agent.ArmFlat || s.index == nil || !s.index.Trained() {
		return s.flatSearch(query, topK)
	}

	params := agent.Params(arm)
	nprobe, maxCodes := params.NProbe, params.MaxCodes
	if p.NProbe > 0 {
		nprobe = p.NProbe
	}
	if p.MaxCodes > 0 {
		maxCodes = p.MaxCodes
	}

	results, err := s.index.Search(ctx, ivfDataSource{s.ds}, query, ivf.Params{TopK: topK, NProbe: nprobe, MaxCodes: maxCodes})
	if err != nil {
		return nil, err
	}
	out := make([]rowResult, len(results))
	for i, r := range results {
		out[i] = rowResult{Row: r.Row, Distance: r.Distance}
	}
	return out, nil
}

// ivfDataSource adapts search's narrower dataSource interface to the
// wider one ivf.Index expects (it also needs Lock/Unlock for Train,
// which Service never calls).
type ivfDataSource struct {
	ds dataSource
}

func (d ivfDataSource) RLock()                     { d.ds.RLock() }
func (d ivfDataSource) RUnlock()                   { d.ds.RUnlock() }
func (d ivfDataSource) Lock()                      { panic("search.Service never trains; Lock is unreachable") }
func (d ivfDataSource) Unlock()                    { panic("search.Service never trains; Unlock is unreachable") }
func (d ivfDataSource) Dim() int                   { return d.ds.Dim() }
func (d ivfDataSource) Len() int                   { return d.ds.Len() }
func (d ivfDataSource) AllVectorsLocked() []float32 { return d.ds.AllVectorsLocked() }
func (d ivfDataSource) NormsSqLocked() []float32    { return d.ds.NormsSqLocked() }

func (s *Service) flatSearch(query []float32, topK int) ([]rowResult, error) {
	s.ds.RLock()
	defer s.ds.RUnlock()

	n := s.ds.Len()
	if n == 0 {
		return nil, nil
	}
	vectors := s.ds.AllVectorsLocked()
	norms := s.ds.NormsSqLocked()
	dim := s.ds.Dim()

	dists := distance.L2SqBatch(query, vectors, dim, norms)
	top := queue.NewTopK(topK)
	for row, d := range dists {
		top.Offer(row, d)
	}

	items := top.Sorted()
	out := make([]rowResult, len(items))
	for i, it := range items {
		out[i] = rowResult{Row: it.RowIndex, Distance: it.Distance}
	}
	return out, nil
}
