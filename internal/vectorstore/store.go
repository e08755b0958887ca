package vectorstore

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/assessrec/assessrec/internal/catalog"
)

// SearchResult pairs a catalog entry with its raw cosine similarity against
// the query vector. The record is borrowed from the store, not copied.
type SearchResult struct {
	ID     string
	Score  float64
	Record *catalog.AssessmentRecord
}

type entry struct {
	id     string
	vector []float64
	norm   float64
	record *catalog.AssessmentRecord
}

// Store holds one vector plus metadata per catalog entry and answers
// brute-force cosine-similarity searches. Mutation is confined to the load
// phase; once loaded the store is effectively read-only and searches can run
// concurrently.
type Store struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	byID      map[string]int
}

// New creates an empty store. The dimension is fixed by the first Add.
func New() *Store {
	return &Store{byID: make(map[string]int)}
}

// Add registers a record with its embedding. The first vector fixes the
// store's dimensionality; later mismatches and duplicate ids are rejected.
func (s *Store) Add(id string, vector []float64, record *catalog.AssessmentRecord) error {
	if id == "" {
		return fmt.Errorf("vector store: empty id")
	}
	if len(vector) == 0 {
		return fmt.Errorf("vector store: empty vector for %q", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = len(vector)
	} else if len(vector) != s.dimension {
		return fmt.Errorf("vector store: dimension mismatch for %q: got %d, want %d", id, len(vector), s.dimension)
	}
	if _, exists := s.byID[id]; exists {
		return fmt.Errorf("vector store: duplicate id %q", id)
	}

	s.byID[id] = len(s.entries)
	s.entries = append(s.entries, entry{
		id:     id,
		vector: vector,
		norm:   l2norm(vector),
		record: record,
	})
	return nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the fixed vector dimensionality, 0 when empty.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// SearchSimilar returns up to topK entries ordered by descending cosine
// similarity. Ties keep catalog insertion order. Asking for more results than
// entries returns the whole catalog ranked.
func (s *Store) SearchSimilar(query []float64, topK int) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("vector store: topK must be positive, got %d", topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(query) != s.dimension {
		return nil, fmt.Errorf("vector store: query dimension %d does not match store dimension %d", len(query), s.dimension)
	}

	queryNorm := l2norm(query)
	results := make([]SearchResult, 0, len(s.entries))
	for _, e := range s.entries {
		results = append(results, SearchResult{
			ID:     e.id,
			Score:  cosine(query, queryNorm, e.vector, e.norm),
			Record: e.record,
		})
	}

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// cosine returns dot(a,b)/(||a||*||b||), defined as 0 when either norm is 0.
func cosine(a []float64, aNorm float64, b []float64, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (aNorm * bNorm)
}

func l2norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
