package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/assessrec/assessrec/internal/catalog"
	"github.com/assessrec/assessrec/internal/embedding"
	"github.com/assessrec/assessrec/internal/reranker"
	"github.com/assessrec/assessrec/internal/textnorm"
	"github.com/assessrec/assessrec/internal/vectorstore"
)

const (
	// DefaultMaxResults caps how many recommendations a single request can
	// receive, whatever the caller asks for.
	DefaultMaxResults = 10

	defaultOverfetchFactor = 2
	defaultRequestTimeout  = 30 * time.Second
)

// Request is one recommendation query from the shell layer.
type Request struct {
	// Text is the free-form job description. Required.
	Text string
	// MaxResults limits the response length. Values outside (0,
	// DefaultMaxResults] are clamped to DefaultMaxResults.
	MaxResults int
	// Filter optionally narrows results by record attributes.
	Filter *catalog.Filter
}

// RankedRecommendation is one result. SimilarityScore is always the raw
// cosine score from the vector search; RerankConfidence is set only when the
// reranking pass succeeded.
type RankedRecommendation struct {
	Record           *catalog.AssessmentRecord
	SimilarityScore  float64
	RerankConfidence *float64
}

// Response carries the ranked results plus whether this invocation paid the
// one-time initialization cost. The shell uses the flag to pick its
// progress-feedback cadence.
type Response struct {
	Recommendations []RankedRecommendation
	ColdStart       bool
	Reranked        bool
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	OverfetchFactor int
	RequestTimeout  time.Duration
	// WaitForReady makes requests arriving during catalog load block until
	// the load finishes (honoring their context). When false such requests
	// fail fast with ErrNotReady.
	WaitForReady bool
}

// Deps are the engine's collaborators.
type Deps struct {
	Normalizer *textnorm.Normalizer
	Cache      *embedding.Cache
	// Reranker is optional; nil disables the second-pass reordering.
	Reranker reranker.Reranker
	Logger   *zap.Logger
	// OpenCatalog supplies the catalog source. It is called once per load
	// attempt, so a reload gets fresh bytes.
	OpenCatalog func() (io.ReadCloser, error)
}

type loadState int

const (
	stateCold loadState = iota
	stateLoading
	stateReady
	stateFailed
)

// Engine orchestrates normalization, embedding, similarity search and
// optional reranking into a single request/response cycle.
type Engine struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	state    loadState
	loading  chan struct{}
	store    *vectorstore.Store
	fatalErr error
}

// New creates an engine. The catalog is loaded lazily on the first request;
// call Bootstrap to pay that cost up front.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Normalizer == nil || deps.Cache == nil || deps.OpenCatalog == nil {
		return nil, errors.New("engine: normalizer, cache and catalog source are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = defaultOverfetchFactor
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	return &Engine{cfg: cfg, deps: deps}, nil
}

// Warm reports whether the catalog is loaded and the engine serves requests
// without initialization cost.
func (e *Engine) Warm() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == stateReady
}

// CatalogSize returns the number of loaded records, 0 before bootstrap.
func (e *Engine) CatalogSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store == nil {
		return 0
	}
	return e.store.Len()
}

// Bootstrap loads the catalog and embeds every record eagerly. Safe to call
// concurrently with requests; only one load runs at a time.
func (e *Engine) Bootstrap(ctx context.Context) error {
	_, err := e.ensureReady(ctx)
	return err
}

// Recommend runs the full matching pipeline for one job description.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	normalized := e.deps.Normalizer.Normalize(req.Text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: job description is empty after normalization", ErrInvalidInput)
	}

	cold, err := e.ensureReady(ctx)
	if err != nil {
		return nil, e.mapDeadline(ctx, err)
	}

	queryVec, err := e.deps.Cache.GetOrCompute(ctx, normalized)
	if err != nil {
		// Without a query embedding there is no search to run.
		return nil, e.mapDeadline(ctx, err)
	}

	maxResults := req.MaxResults
	if maxResults <= 0 || maxResults > DefaultMaxResults {
		maxResults = DefaultMaxResults
	}

	shortlist, err := e.search(queryVec, maxResults, req.Filter)
	if err != nil {
		return nil, err
	}

	recommendations, reranked := e.maybeRerank(ctx, normalized, shortlist)

	if len(recommendations) > maxResults {
		recommendations = recommendations[:maxResults]
	}

	e.deps.Logger.Debug("recommendation served",
		zap.Int("results", len(recommendations)),
		zap.Bool("cold_start", cold),
		zap.Bool("reranked", reranked),
	)

	return &Response{
		Recommendations: recommendations,
		ColdStart:       cold,
		Reranked:        reranked,
	}, nil
}

// search over-fetches a shortlist so the reranker and filters have room to
// reshuffle before truncation.
func (e *Engine) search(queryVec []float64, maxResults int, filter *catalog.Filter) ([]vectorstore.SearchResult, error) {
	topK := maxResults * e.cfg.OverfetchFactor
	results, err := e.store.SearchSimilar(queryVec, topK)
	if err != nil {
		return nil, err
	}

	if filter == nil {
		return results, nil
	}
	filtered := results[:0]
	for _, r := range results {
		if filter.Matches(r.Record) {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// maybeRerank applies the optional second-pass judge. Any reranker failure
// falls back to the similarity order; it is logged and never surfaced.
func (e *Engine) maybeRerank(ctx context.Context, query string, shortlist []vectorstore.SearchResult) ([]RankedRecommendation, bool) {
	plain := make([]RankedRecommendation, 0, len(shortlist))
	for _, r := range shortlist {
		plain = append(plain, RankedRecommendation{Record: r.Record, SimilarityScore: r.Score})
	}

	if e.deps.Reranker == nil || len(shortlist) < 2 {
		return plain, false
	}

	candidates := make([]reranker.Candidate, 0, len(shortlist))
	byID := make(map[string]RankedRecommendation, len(shortlist))
	for i, r := range shortlist {
		candidates = append(candidates, reranker.Candidate{
			ID:    r.ID,
			Text:  r.Record.Description,
			Score: r.Score,
		})
		byID[r.ID] = plain[i]
	}

	judged, err := e.deps.Reranker.Rerank(ctx, query, candidates)
	if err != nil {
		e.deps.Logger.Warn("reranking failed, keeping similarity order", zap.Error(err))
		return plain, false
	}

	reordered := make([]RankedRecommendation, 0, len(judged))
	for _, j := range judged {
		rec, ok := byID[j.ID]
		if !ok {
			continue
		}
		confidence := j.Confidence
		rec.RerankConfidence = &confidence
		reordered = append(reordered, rec)
	}
	if len(reordered) != len(plain) {
		e.deps.Logger.Warn("reranker returned unexpected candidate set, keeping similarity order",
			zap.Int("expected", len(plain)),
			zap.Int("got", len(reordered)),
		)
		return plain, false
	}
	return reordered, true
}

// ensureReady makes sure the catalog is loaded, returning whether this caller
// performed the cold-start work. Load failures other than catalog defects are
// retryable on the next request; a malformed catalog is sticky and fatal.
func (e *Engine) ensureReady(ctx context.Context) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		e.mu.Lock()
		switch e.state {
		case stateReady:
			e.mu.Unlock()
			return false, nil

		case stateFailed:
			err := e.fatalErr
			e.mu.Unlock()
			return false, err

		case stateLoading:
			loading := e.loading
			e.mu.Unlock()
			if !e.cfg.WaitForReady {
				return false, ErrNotReady
			}
			select {
			case <-loading:
				// Re-inspect the state; the load may have failed.
			case <-ctx.Done():
				return false, ctx.Err()
			}

		case stateCold:
			e.state = stateLoading
			e.loading = make(chan struct{})
			loading := e.loading
			e.mu.Unlock()

			// The load serves every waiting request, so it runs
			// detached from the initiating caller's context. The
			// initiator still honors its own deadline while waiting,
			// exactly like the other waiters.
			done := make(chan error, 1)
			go func() {
				store, err := e.load(context.WithoutCancel(ctx))

				e.mu.Lock()
				if err != nil {
					var malformed *catalog.MalformedCatalogError
					if errors.As(err, &malformed) {
						// Running with a partial catalog is never allowed.
						e.state = stateFailed
						e.fatalErr = err
					} else {
						e.state = stateCold
					}
				} else {
					e.store = store
					e.state = stateReady
				}
				close(loading)
				e.mu.Unlock()
				done <- err
			}()

			select {
			case err := <-done:
				return err == nil, err
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}
}

// load builds a fully populated store before the engine ever sees it, so no
// request can observe a partially loaded catalog.
func (e *Engine) load(ctx context.Context) (*vectorstore.Store, error) {
	started := time.Now()

	source, err := e.deps.OpenCatalog()
	if err != nil {
		return nil, fmt.Errorf("opening catalog source: %w", err)
	}
	defer source.Close()

	records, err := catalog.Load(source)
	if err != nil {
		return nil, err
	}

	normalized := records.Descriptions()
	for i, desc := range normalized {
		normalized[i] = e.deps.Normalizer.Normalize(desc)
	}

	vectors, err := e.deps.Cache.GetOrComputeBatch(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("embedding catalog: %w", err)
	}

	store := vectorstore.New()
	for i, rec := range records {
		if err := store.Add(rec.ID, vectors[i], rec); err != nil {
			return nil, err
		}
	}

	e.deps.Logger.Info("catalog loaded",
		zap.Int("records", store.Len()),
		zap.Int("dimension", store.Dimension()),
		zap.Duration("took", time.Since(started)),
	)
	return store, nil
}

func (e *Engine) mapDeadline(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, e.cfg.RequestTimeout)
	}
	return err
}
