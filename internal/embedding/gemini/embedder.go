package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/assessrec/assessrec/internal/embedding"
	"github.com/assessrec/assessrec/internal/util"
)

const (
	defaultModel      = "gemini-embedding-001"
	defaultMaxRetries = 2
)

// Embedder produces embeddings through the Gemini API. Vector dimensionality
// is discovered from the first successful response and kept for the lifetime
// of the process.
type Embedder struct {
	client     *genai.Client
	modelName  string
	maxRetries int
	logger     *zap.Logger

	dim  atomic.Int64
	warm atomic.Bool
}

// NewEmbedder creates a Gemini-backed embedding provider. Client construction
// is the expensive one-time step; the provider stays cold until its first
// successful embedding call.
func NewEmbedder(ctx context.Context, apiKey, model string, maxRetries int, logger *zap.Logger) (*Embedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:     client,
		modelName:  model,
		maxRetries: maxRetries,
		logger:     logger,
	}, nil
}

func (e *Embedder) Name() string { return "gemini" }

// Dimension returns the vector dimensionality, or 0 before the first call.
func (e *Embedder) Dimension() int { return int(e.dim.Load()) }

// Warm reports whether the backend has completed at least one call.
func (e *Embedder) Warm() bool { return e.warm.Load() }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds all texts in one request, preserving input order.
// Transient failures are retried a bounded number of times with backoff;
// exhausted retries surface as embedding.ErrUnavailable.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: text}},
		})
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := util.WaitFor(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			e.logger.Debug("retrying gemini embedding request",
				zap.Int("attempt", attempt),
				zap.Int("batch_size", len(texts)),
			)
		}

		result, err := e.client.Models.EmbedContent(ctx, e.modelName, contents, &genai.EmbedContentConfig{})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		vectors, err := convert(result, len(texts))
		if err != nil {
			lastErr = err
			continue
		}

		if e.dim.Load() == 0 {
			e.dim.Store(int64(len(vectors[0])))
		}
		e.warm.Store(true)
		return vectors, nil
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v",
		embedding.ErrUnavailable, e.modelName, e.maxRetries+1, lastErr)
}

func convert(result *genai.EmbedContentResponse, want int) ([][]float64, error) {
	got := 0
	if result != nil {
		got = len(result.Embeddings)
	}
	if result == nil || got != want {
		return nil, fmt.Errorf("expected %d embeddings in response, got %d", want, got)
	}

	vectors := make([][]float64, want)
	for i, emb := range result.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("empty embedding at position %d", i)
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func retryDelay(attempt int) time.Duration {
	base := 500 * time.Millisecond
	d := base << attempt
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
