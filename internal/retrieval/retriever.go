package retrieval

import (
	"context"

	"formagent/internal/domain"
)

// Retriever applies a fixed fan-out to index searches.
type Retriever struct {
	index *Index
	k     int
}

func NewRetriever(index *Index, k int) *Retriever {
	return &Retriever{index: index, k: k}
}

// Retrieve returns up to K passages for query.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.ScoredPassage, error) {
	return r.index.Search(ctx, query, r.k)
}

func (r *Retriever) K() int { return r.k }
