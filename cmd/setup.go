package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/assessrec/assessrec/internal/embedding"
	embeddinggemini "github.com/assessrec/assessrec/internal/embedding/gemini"
	"github.com/assessrec/assessrec/internal/engine"
	"github.com/assessrec/assessrec/internal/logger"
	"github.com/assessrec/assessrec/internal/reranker"
	rerankgemini "github.com/assessrec/assessrec/internal/reranker/gemini"
	"github.com/assessrec/assessrec/internal/secrets"
	"github.com/assessrec/assessrec/internal/textnorm"
)

// buildEngine assembles the recommendation engine from configuration: the
// normalizer, the selected embedding backend behind its cache, the optional
// reranker and the catalog source.
func buildEngine(ctx context.Context, config *Config, log *zap.Logger) (*engine.Engine, error) {
	provider, err := newEmbeddingProvider(ctx, config, log)
	if err != nil {
		return nil, err
	}

	cache, err := embedding.NewCache(provider, embedding.CacheConfig{
		MaxEntries: config.Cache.MaxEntries,
		TTL:        time.Duration(config.Cache.TTLHours) * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	rr, err := newReranker(ctx, config, log)
	if err != nil {
		return nil, err
	}

	catalogFile := config.CatalogFile
	return engine.New(
		engine.Config{
			OverfetchFactor: config.Engine.OverfetchFactor,
			RequestTimeout:  time.Duration(config.Engine.RequestTimeoutSecs) * time.Second,
			WaitForReady:    config.Engine.WaitForReady,
		},
		engine.Deps{
			Normalizer: textnorm.New(config.MaxTextLength),
			Cache:      cache,
			Reranker:   rr,
			Logger:     log,
			OpenCatalog: func() (io.ReadCloser, error) {
				return os.Open(catalogFile)
			},
		},
	)
}

func newEmbeddingProvider(ctx context.Context, config *Config, log *zap.Logger) (embedding.Provider, error) {
	provider := strings.TrimSpace(strings.ToLower(config.Embedding.Provider))
	switch provider {
	case "", "local":
		return embedding.NewLocal(config.Embedding.LocalDimension), nil
	case "gemini":
		gcfg := config.Embedding.Gemini
		if gcfg == nil {
			gcfg = &GeminiConfig{}
		}
		apiKey, err := resolveGeminiKey(gcfg)
		if err != nil {
			return nil, err
		}
		return embeddinggemini.NewEmbedder(ctx, apiKey, gcfg.Model, gcfg.MaxRetries,
			logger.WithBackend(log, "gemini", gcfg.Model))
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", config.Embedding.Provider)
	}
}

func newReranker(ctx context.Context, config *Config, log *zap.Logger) (reranker.Reranker, error) {
	if config.Rerank == nil || !config.Rerank.Enabled {
		return nil, nil
	}

	gcfg := config.Rerank.Gemini
	if gcfg == nil {
		gcfg = &GeminiConfig{}
	}
	apiKey, err := resolveGeminiKey(gcfg)
	if err != nil {
		return nil, err
	}

	genLogger := logger.WithBackend(log, "gemini", gcfg.Model)
	generator, err := rerankgemini.NewGenerator(ctx, apiKey, gcfg.Model, gcfg.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return rerankgemini.NewJudge(generator, genLogger, config.Rerank.MaxLogLength), nil
}

func resolveGeminiKey(gcfg *GeminiConfig) (string, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  gcfg.APIKeyFile,
		Env:   "GEMINI_API_KEY",
		Value: gcfg.APIKey,
	})
	if err != nil {
		return "", fmt.Errorf("%w (set gemini api-key-file or GEMINI_API_KEY_FILE)", err)
	}
	return apiKey, nil
}
