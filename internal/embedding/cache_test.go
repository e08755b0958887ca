package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingProvider is a deterministic provider that records how many embed
// calls reached the backend.
type countingProvider struct {
	dim     int
	calls   atomic.Int64
	delay   time.Duration
	failErr error // returned by Embed when set
}

func (p *countingProvider) Name() string   { return "counting" }
func (p *countingProvider) Dimension() int { return p.dim }
func (p *countingProvider) Warm() bool     { return p.calls.Load() > 0 }

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.calls.Add(1)
	if p.failErr != nil {
		return nil, p.failErr
	}
	vec := make([]float64, p.dim)
	for i, r := range text {
		vec[i%p.dim] += float64(r)
	}
	return vec, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func TestCacheHitSkipsProvider(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 8}
	cache, err := NewCache(provider, CacheConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	first, err := cache.GetOrCompute(ctx, "numerical reasoning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := cache.GetOrCompute(ctx, "numerical reasoning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.calls.Load() != 1 {
		t.Fatalf("expected exactly 1 provider call, got %d", provider.calls.Load())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cold and warm vectors differ at %d", i)
		}
	}
}

func TestCacheTTLExpiryRecomputes(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 4}
	cache, err := NewCache(provider, CacheConfig{TTL: time.Minute})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	current := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return current }

	ctx := context.Background()
	if _, err := cache.GetOrCompute(ctx, "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Within TTL: cached.
	current = current.Add(30 * time.Second)
	if _, err := cache.GetOrCompute(ctx, "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls.Load() != 1 {
		t.Fatalf("expected 1 call within TTL, got %d", provider.calls.Load())
	}

	// Past TTL: treated as a miss and recomputed.
	current = current.Add(2 * time.Minute)
	if _, err := cache.GetOrCompute(ctx, "text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls.Load() != 2 {
		t.Fatalf("expected recompute after TTL, got %d calls", provider.calls.Load())
	}
}

func TestCacheLRUEviction(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 4}
	cache, err := NewCache(provider, CacheConfig{MaxEntries: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		if _, err := cache.GetOrCompute(ctx, text); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if cache.Len() != 2 {
		t.Fatalf("expected cache bounded at 2 entries, got %d", cache.Len())
	}

	// "one" was evicted as least recently used, so it recomputes.
	before := provider.calls.Load()
	if _, err := cache.GetOrCompute(ctx, "one"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls.Load() != before+1 {
		t.Fatalf("expected recompute of evicted entry")
	}
}

func TestCacheCoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 8, delay: 50 * time.Millisecond}
	cache, err := NewCache(provider, CacheConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.GetOrCompute(context.Background(), "same fingerprint")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected 1 coalesced computation, got %d", got)
	}
}

func TestCacheAbandoningCallerGetsContextError(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 4, delay: 200 * time.Millisecond}
	cache, err := NewCache(provider, CacheConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = cache.GetOrCompute(ctx, "slow text")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	// The shared computation was not killed; a later caller can still use
	// its cached result without a second backend call finishing first.
	time.Sleep(300 * time.Millisecond)
	if _, err := cache.GetOrCompute(context.Background(), "slow text"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := provider.calls.Load(); got != 1 {
		t.Fatalf("expected the abandoned computation to be reused, got %d calls", got)
	}
}

func TestCacheBatchCollectsMisses(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 4}
	cache, err := NewCache(provider, CacheConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	if _, err := cache.GetOrCompute(ctx, "cached"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vectors, err := cache.GetOrComputeBatch(ctx, []string{"cached", "fresh-a", "fresh-b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 4 {
			t.Fatalf("vector %d has wrong dimension %d", i, len(vec))
		}
	}

	// 1 initial + 2 misses; the already-cached entry must not recompute.
	if got := provider.calls.Load(); got != 3 {
		t.Fatalf("expected 3 provider calls, got %d", got)
	}

	// A full re-batch is all hits.
	before := provider.calls.Load()
	if _, err := cache.GetOrComputeBatch(ctx, []string{"cached", "fresh-a", "fresh-b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls.Load() != before {
		t.Fatalf("expected no recomputation on warm batch")
	}
}

// truncatingBatchProvider answers batches with a mismatched vector count.
type truncatingBatchProvider struct {
	countingProvider
	extra int // vectors added (positive) or dropped (negative) per batch
}

func (p *truncatingBatchProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out, err := p.countingProvider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if p.extra < 0 {
		return out[:len(out)+p.extra], nil
	}
	for i := 0; i < p.extra; i++ {
		out = append(out, make([]float64, p.dim))
	}
	return out, nil
}

func TestCacheBatchRejectsMismatchedProviderReply(t *testing.T) {
	t.Parallel()

	for _, extra := range []int{-1, 1} {
		provider := &truncatingBatchProvider{countingProvider: countingProvider{dim: 4}, extra: extra}
		cache, err := NewCache(provider, CacheConfig{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err = cache.GetOrComputeBatch(context.Background(), []string{"a", "b", "c"})
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("extra=%d: expected ErrUnavailable for mismatched reply, got %v", extra, err)
		}
	}
}

func TestCachePropagatesProviderFailure(t *testing.T) {
	t.Parallel()

	provider := &countingProvider{dim: 4, failErr: ErrUnavailable}
	cache, err := NewCache(provider, CacheConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = cache.GetOrCompute(context.Background(), "text")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// Failures are not cached; a recovered provider is consulted again.
	provider.failErr = nil
	if _, err := cache.GetOrCompute(context.Background(), "text"); err != nil {
		t.Fatalf("unexpected error after recovery: %v", err)
	}
}
