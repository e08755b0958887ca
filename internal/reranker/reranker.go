package reranker

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the reranking backend failed. The engine treats it
// as a quality degradation, never as a request failure.
var ErrUnavailable = errors.New("reranking backend unavailable")

// Candidate is one shortlist entry handed to the relevance judge.
type Candidate struct {
	ID    string
	Text  string
	Score float64
}

// Result is a judged candidate with a confidence in [0,1].
type Result struct {
	ID         string
	Confidence float64
}

// Reranker reorders a similarity-search shortlist using a more expensive
// relevance judgment. Results come back in the judge's preferred order, most
// relevant first; the confidence values are informational and not guaranteed
// to be monotonic. Callers must be prepared to fall back to the original
// order on error.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Result, error)
}
