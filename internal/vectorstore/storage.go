package vectorstore

import "formagent/internal/domain"

// Storage holds passage vectors and supports similarity search.
type Storage interface {
	// Upsert stores vectors for passages. A passage whose Key is already
	// present replaces the previous entry in place.
	Upsert(passages []domain.Passage, vectors [][]float32) error
	// Search returns at most topK passages by descending similarity.
	Search(vector []float32, topK int) ([]domain.ScoredPassage, error)
	// DeleteSource removes every passage of one document and returns the
	// number removed.
	DeleteSource(sourceID string) int
	// Passages lists stored passages in insertion order.
	Passages() []domain.Passage
	Len() int
	Dimension() int
	Clear() error
}
