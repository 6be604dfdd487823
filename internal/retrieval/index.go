package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"formagent/internal/apperr"
	"formagent/internal/domain"
	"formagent/internal/vectorstore"
)

// DefaultEmbedConcurrency bounds parallel embedder calls during ingestion.
const DefaultEmbedConcurrency = 8

// Index pairs an embedder with a vector storage. It owns the embedding step
// so callers only deal with passages and query text.
type Index struct {
	embedder    domain.Embedder
	store       vectorstore.Storage
	concurrency int
	logger      *zap.Logger

	// serialises writes so preparation, deletion and upsert happen as one step
	writeMu sync.Mutex
}

func NewIndex(embedder domain.Embedder, store vectorstore.Storage, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		embedder:    embedder,
		store:       store,
		concurrency: DefaultEmbedConcurrency,
		logger:      logger,
	}
}

// InsertAll embeds and stores passages. Re-inserting a passage with the same
// source, page and chunk index replaces the earlier entry.
func (ix *Index) InsertAll(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	return ix.insert(ctx, nil, passages)
}

// ReplaceSources makes passages the whole indexed content of each source in
// sources: earlier passages of those sources are dropped even when their keys
// do not come back. A source with no new passages ends up absent.
func (ix *Index) ReplaceSources(ctx context.Context, sources []string, passages []domain.Passage) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	return ix.insert(ctx, sources, passages)
}

// RemoveSource drops every passage of sourceID.
func (ix *Index) RemoveSource(sourceID string) int {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()
	n := ix.store.DeleteSource(sourceID)
	if n > 0 {
		ix.logger.Debug("removed source", zap.String("source", sourceID), zap.Int("passages", n))
	}
	return n
}

// insert embeds everything before it changes the store, so a failed batch
// leaves the index as it was. Callers hold writeMu.
func (ix *Index) insert(ctx context.Context, replace []string, passages []domain.Passage) error {
	vectors, err := ix.embedBatch(ctx, passages)
	if err != nil {
		return err
	}
	if dim := ix.store.Dimension(); dim != 0 {
		for i, v := range vectors {
			if len(v) != dim {
				return apperr.GenerationFailure("embed passages",
					fmt.Errorf("vector dimension %d for %s, index uses %d", len(v), passages[i].Key(), dim))
			}
		}
	}
	for _, src := range replace {
		ix.store.DeleteSource(src)
	}
	if len(passages) > 0 {
		if err := ix.store.Upsert(passages, vectors); err != nil {
			return err
		}
	}
	ix.logger.Debug("indexed passages",
		zap.Int("count", len(passages)),
		zap.Strings("replaced_sources", replace),
		zap.Int("total", ix.store.Len()),
		zap.String("embedder", ix.embedder.Name()))
	return nil
}

// embedBatch embeds passages in parallel. An embedder that needs a corpus
// pass is prepared on the first batch the index ever stores; that preparation
// is undone when the batch fails, so it never describes passages that were
// not stored.
func (ix *Index) embedBatch(ctx context.Context, passages []domain.Passage) ([][]float32, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	var prepared domain.Preparer
	if p, ok := ix.embedder.(domain.Preparer); ok && ix.store.Dimension() == 0 {
		corpus := make([]string, len(passages))
		for i := range passages {
			corpus[i] = passages[i].Text
		}
		if err := p.Prepare(corpus); err != nil {
			return nil, apperr.GenerationFailure("prepare embedder", err)
		}
		prepared = p
	}

	vectors := make([][]float32, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i := range passages {
		g.Go(func() error {
			v, err := ix.embedder.Embed(gctx, passages[i].Text)
			if err != nil {
				return fmt.Errorf("embed %s: %w", passages[i].Key(), err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if prepared != nil {
			prepared.Reset()
		}
		return nil, classify(ctx, "embed passages", err)
	}
	return vectors, nil
}

// Search embeds query and returns the k most similar passages. An empty
// index yields an empty result without calling the embedder.
func (ix *Index) Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error) {
	if k <= 0 {
		return nil, apperr.InvalidArgument("k must be positive").WithDetail("k", k)
	}
	if strings.TrimSpace(query) == "" {
		return nil, apperr.InvalidArgument("query must not be empty")
	}
	if ix.store.Len() == 0 {
		return nil, nil
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, classify(ctx, "embed query", err)
	}
	return ix.store.Search(vec, k)
}

// Passages lists indexed passages in insertion order.
func (ix *Index) Passages() []domain.Passage { return ix.store.Passages() }

func (ix *Index) Len() int { return ix.store.Len() }

// classify maps embedder failures onto the error taxonomy.
func classify(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return apperr.Cancelled(op, err)
	}
	return apperr.GenerationFailure(op, err)
}
