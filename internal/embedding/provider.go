package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding backend could not produce a vector
// (model load failure, network failure, quota exhaustion). The request that
// hit it cannot proceed; callers decide whether to retry.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Provider converts text into fixed-length numeric vectors. All vectors
// produced by one provider share the same dimensionality; mixing providers
// within one vector store is a contract violation.
//
// Initialization may be expensive (seconds). Warm reports whether that
// one-time cost has already been paid, so the shell layer can adjust its
// progress feedback for the first call.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
	Warm() bool
}
