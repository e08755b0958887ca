package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync/atomic"
)

const defaultLocalDimension = 256

var tokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// Local is an offline embedding backend. It projects token hashes into a
// fixed-size vector and L2-normalizes the result. The output is deterministic
// for a given input, which is what the cache and the idempotent catalog load
// rely on. Quality is far below a real model; it exists so the system runs
// without network access and so tests have a fast backend.
type Local struct {
	dim  int
	warm atomic.Bool
}

// NewLocal creates a local embedder with the given dimensionality.
// Non-positive dimensions fall back to a default.
func NewLocal(dim int) *Local {
	if dim <= 0 {
		dim = defaultLocalDimension
	}
	return &Local{dim: dim}
}

func (l *Local) Name() string { return "local" }

// Dimension returns the fixed output dimensionality.
func (l *Local) Dimension() int { return l.dim }

// Warm reports whether the embedder has served at least one call.
func (l *Local) Warm() bool { return l.warm.Load() }

// Embed hashes each token into vector positions and normalizes the result.
// A text with no tokens yields a zero vector.
func (l *Local) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer l.warm.Store(true)

	vec := make([]float64, l.dim)
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		seed := h.Sum64()
		// Each token contributes to a handful of positions with signed
		// weights, a cheap stand-in for a learned projection.
		for i := 0; i < 4; i++ {
			seed = seed*1099511628211 + 1469598103934665603
			idx := int(seed % uint64(l.dim))
			sign := 1.0
			if seed&1 == 0 {
				sign = -1.0
			}
			vec[idx] += sign
		}
	}

	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := l.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func normalize(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}
