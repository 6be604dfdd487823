package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/vecgo/distance"

	"formagent/internal/apperr"
	"formagent/internal/domain"
)

type entry struct {
	passage domain.Passage
	vector  []float32
}

// Storage is an in-memory vector store using brute-force cosine similarity.
// Vectors are normalised on insert so scoring is a single dot product.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
	byKey     map[string]int
}

func NewStorage() *Storage {
	return &Storage{byKey: make(map[string]int)}
}

// Upsert validates every vector before touching the store, so a failed call
// leaves it unchanged. The first stored vector fixes the dimension.
func (s *Storage) Upsert(passages []domain.Passage, vectors [][]float32) error {
	if len(passages) != len(vectors) {
		return apperr.InvalidArgument("passages and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dim := s.dimension
	for i, v := range vectors {
		if len(v) == 0 {
			return apperr.InvalidArgument(fmt.Sprintf("empty vector for %s", passages[i].Key()))
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return apperr.InvalidArgument(fmt.Sprintf("vector dimension mismatch: got %d, want %d", len(v), dim)).
				WithDetail("passage", passages[i].Key())
		}
	}
	s.dimension = dim
	for i, p := range passages {
		e := entry{passage: p, vector: normalized(vectors[i])}
		if idx, ok := s.byKey[p.Key()]; ok {
			s.entries[idx] = e
			continue
		}
		s.byKey[p.Key()] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

// Search ranks every stored passage. Equal scores keep insertion order.
func (s *Storage) Search(vector []float32, topK int) ([]domain.ScoredPassage, error) {
	if topK <= 0 {
		return nil, apperr.InvalidArgument("k must be positive").WithDetail("k", topK)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		// embedder fault, not caller input
		return nil, apperr.GenerationFailure("search index",
			fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), s.dimension))
	}
	q := normalized(vector)
	results := make([]domain.ScoredPassage, len(s.entries))
	for i := range s.entries {
		results[i] = domain.ScoredPassage{
			Passage: s.entries[i].passage,
			Score:   float64(distance.Dot(q, s.entries[i].vector)),
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// DeleteSource drops every passage of sourceID and reports how many were
// removed. Remaining entries keep their relative order.
func (s *Storage) DeleteSource(sourceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.passage.SourceID != sourceID {
			kept = append(kept, e)
		}
	}
	removed := len(s.entries) - len(kept)
	if removed == 0 {
		return 0
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.byKey = make(map[string]int, len(kept))
	for i := range kept {
		s.byKey[kept[i].passage.Key()] = i
	}
	return removed
}

func (s *Storage) Passages() []domain.Passage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Passage, len(s.entries))
	for i := range s.entries {
		out[i] = s.entries[i].passage
	}
	return out
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Clear drops all entries. The dimension stays fixed.
func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.byKey = make(map[string]int)
	return nil
}

// normalized returns a unit-length copy of v; zero vectors stay zero and
// score 0 against everything.
func normalized(v []float32) []float32 {
	if n, ok := distance.NormalizeL2Copy(v); ok {
		return n
	}
	return make([]float32, len(v))
}
