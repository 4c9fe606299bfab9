package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Metadata is the copy of non-vector fields stored alongside each
// embedding so semantic hits are self-describing.
type Metadata struct {
	Date           time.Time
	Amount         decimal.Decimal
	Currency       string
	Merchant       string
	Category       string
	RawDescription string
	SourceFile     string
}

type entry struct {
	vector []float32
	meta   Metadata
}

// Result is one ranked semantic hit.
type Result struct {
	ID    string
	Score float64
	Meta  Metadata
}

// Store is the session-scoped vector collection, keyed by transaction ID.
// Concurrent writes are fine since keys are independent; a RWMutex guards
// the map itself. The similarity metric is fixed: cosine.
type Store struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]entry
}

// New creates a collection for vectors of the given dimensionality.
func New(dim int) *Store {
	return &Store{dim: dim, entries: make(map[string]entry)}
}

// Upsert inserts or replaces the vector and metadata for id.
func (s *Store) Upsert(id string, vec []float32, meta Metadata) error {
	if len(vec) != s.dim {
		return fmt.Errorf("vector.Upsert: got dimension %d, want %d", len(vec), s.dim)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	s.mu.Lock()
	s.entries[id] = entry{vector: cp, meta: meta}
	s.mu.Unlock()
	return nil
}

// Delete removes the entry for id, if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Has reports whether an embedding exists for id.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of stored embeddings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Search returns the top-k entries by cosine similarity. Ranking is
// deterministic: score descending, ties broken by ID ascending, so an
// unchanged store answers identical queries identically.
func (s *Store) Search(vec []float32, k int) ([]Result, error) {
	if len(vec) != s.dim {
		return nil, fmt.Errorf("vector.Search: got dimension %d, want %d", len(vec), s.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("vector.Search: k must be positive, got %d", k)
	}

	s.mu.RLock()
	results := make([]Result, 0, len(s.entries))
	for id, e := range s.entries {
		results = append(results, Result{
			ID:    id,
			Score: cosineSimilarity(vec, e.vector),
			Meta:  e.meta,
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
