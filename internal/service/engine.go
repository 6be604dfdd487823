package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"formagent/internal/apperr"
	"formagent/internal/domain"
	"formagent/internal/prompt"
	"formagent/internal/retrieval"
	"formagent/internal/summarizer"
)

// Options tunes the answering modes. Zero values take the defaults below,
// except OverviewSentences where zero turns the ingest overview off.
type Options struct {
	AskK               int
	AnalyzeK           int
	SummarySample      int
	SummaryPerDocument int
	OverviewSentences  int
	GenerateTimeout    time.Duration
}

const (
	DefaultAskK               = 4
	DefaultAnalyzeK           = 8
	DefaultSummarySample      = 8
	DefaultSummaryPerDocument = 5
	DefaultOverviewSentences  = 3
	DefaultGenerateTimeout    = 120 * time.Second
)

// NoDocumentsAnswer is shown when a question arrives before anything is indexed.
const NoDocumentsAnswer = "No documents are indexed yet. Add some documents and try again."

// DocumentInfo describes one indexed source.
type DocumentInfo struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	Pages    int    `json:"pages"`
	Passages int    `json:"passages"`
}

// IngestReport summarises one ingestion batch.
type IngestReport struct {
	Documents int
	Pages     int
	Passages  int
	Skipped   []domain.Page
	Overview  string
}

// Engine answers questions over an index. It holds no per-call state, so
// one instance serves every caller.
type Engine struct {
	chunker   domain.Chunker
	index     *retrieval.Index
	asker     *retrieval.Retriever
	analyzer  *retrieval.Retriever
	generator domain.Generator
	prompts   *prompt.Assembler
	overview  *summarizer.FrequencySummarizer
	opts      Options
	logger    *zap.Logger
}

func New(chunker domain.Chunker, index *retrieval.Index, generator domain.Generator, prompts *prompt.Assembler, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prompts == nil {
		prompts = prompt.New(prompt.DefaultBudget)
	}
	opts = withDefaults(opts)
	return &Engine{
		chunker:   chunker,
		index:     index,
		asker:     retrieval.NewRetriever(index, opts.AskK),
		analyzer:  retrieval.NewRetriever(index, opts.AnalyzeK),
		generator: generator,
		prompts:   prompts,
		overview:  summarizer.NewFrequencySummarizer(),
		opts:      opts,
		logger:    logger,
	}
}

func withDefaults(o Options) Options {
	if o.AskK <= 0 {
		o.AskK = DefaultAskK
	}
	if o.AnalyzeK <= 0 {
		o.AnalyzeK = DefaultAnalyzeK
	}
	o.AnalyzeK = max(o.AnalyzeK, o.AskK)
	if o.SummarySample <= 0 {
		o.SummarySample = DefaultSummarySample
	}
	if o.SummaryPerDocument <= 0 {
		o.SummaryPerDocument = DefaultSummaryPerDocument
	}
	o.OverviewSentences = max(o.OverviewSentences, 0)
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = DefaultGenerateTimeout
	}
	return o
}

// Options returns the effective options after defaults.
func (e *Engine) Options() Options { return e.opts }

// Ingest chunks pages and indexes the passages. Each document named in pages
// is replaced as a whole, so content a re-loaded file no longer has is
// dropped from the index.
func (e *Engine) Ingest(ctx context.Context, pages []domain.Page) (IngestReport, error) {
	res := e.chunker.Split(pages)
	report := IngestReport{Pages: len(pages) - len(res.Skipped), Skipped: res.Skipped}

	var documents []string
	seen := map[string]struct{}{}
	for _, p := range pages {
		if _, ok := seen[p.SourceID]; !ok {
			seen[p.SourceID] = struct{}{}
			documents = append(documents, p.SourceID)
		}
	}
	if err := e.index.ReplaceSources(ctx, documents, res.Passages); err != nil {
		return report, err
	}
	sources := map[string]struct{}{}
	for _, p := range res.Passages {
		sources[p.SourceID] = struct{}{}
	}
	report.Documents = len(sources)
	report.Passages = len(res.Passages)
	if e.opts.OverviewSentences > 0 {
		report.Overview = e.overview.Overview(balancedSample(res.Passages, e.opts.SummarySample), e.opts.OverviewSentences)
	}
	e.logger.Info("ingested documents",
		zap.Int("documents", report.Documents),
		zap.Int("pages", report.Pages),
		zap.Int("passages", report.Passages),
		zap.Int("skipped_pages", len(report.Skipped)),
		zap.Int("index_size", e.index.Len()))
	return report, nil
}

// Remove drops a document from the index and reports how many passages it had.
func (e *Engine) Remove(sourceID string) int {
	n := e.index.RemoveSource(sourceID)
	e.logger.Info("removed document",
		zap.String("source", sourceID),
		zap.Int("passages", n),
		zap.Int("index_size", e.index.Len()))
	return n
}

// Ask answers a single question from the closest passages.
func (e *Engine) Ask(ctx context.Context, question string) (domain.AnswerRecord, error) {
	return e.answer(ctx, domain.ModeAsk, question, e.asker, e.prompts.QA)
}

// Analyze answers a question that may need facts from several documents.
// It retrieves at least as many passages as Ask.
func (e *Engine) Analyze(ctx context.Context, question string) (domain.AnswerRecord, error) {
	return e.answer(ctx, domain.ModeAnalyze, question, e.analyzer, e.prompts.Holistic)
}

func (e *Engine) answer(
	ctx context.Context,
	mode domain.Mode,
	question string,
	r *retrieval.Retriever,
	build func(string, []domain.ScoredPassage) string,
) (domain.AnswerRecord, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.AnswerRecord{}, apperr.InvalidArgument("question must not be empty")
	}
	rec := domain.AnswerRecord{Mode: mode, Query: question}

	hits, err := r.Retrieve(ctx, question)
	if err != nil {
		if apperr.TypeOf(err) == apperr.ErrorTypeInvalidArgument {
			return rec, err
		}
		return e.failed(rec, err), nil
	}
	if len(hits) == 0 {
		return e.failed(rec, apperr.EmptyIndex("no passages indexed")), nil
	}

	kept := e.prompts.FitScored(hits)
	rec.Sources = make([]domain.Passage, len(kept))
	for i := range kept {
		rec.Sources[i] = kept[i].Passage
	}
	e.logger.Debug("retrieved passages",
		zap.String("mode", string(mode)),
		zap.Int("k", r.K()),
		zap.Int("hits", len(hits)),
		zap.Int("in_prompt", len(kept)))
	return e.generate(ctx, rec, build(question, kept))
}

// Summarize summarises the documents whose source matches documentName
// (case-insensitive substring). An empty name samples the opening passages
// of every document.
func (e *Engine) Summarize(ctx context.Context, documentName string) (domain.AnswerRecord, error) {
	name := strings.TrimSpace(documentName)
	rec := domain.AnswerRecord{Mode: domain.ModeSummarize, Query: name}

	all := e.index.Passages()
	var selected []domain.Passage
	if name != "" {
		needle := strings.ToLower(name)
		var matched []domain.Passage
		for _, p := range all {
			if strings.Contains(strings.ToLower(p.SourceID), needle) {
				matched = append(matched, p)
			}
		}
		if len(matched) == 0 {
			err := apperr.NotFound(fmt.Sprintf("No document found matching '%s'", name)).WithDetail("document", name)
			return e.failed(rec, err), nil
		}
		selected = balancedSample(matched, e.opts.SummaryPerDocument)
	} else {
		if len(all) == 0 {
			return e.failed(rec, apperr.EmptyIndex("no passages indexed")), nil
		}
		selected = balancedSample(all, e.opts.SummarySample)
	}

	rec.Sources = e.prompts.FitPassages(selected)
	return e.generate(ctx, rec, e.prompts.Summary(rec.Sources))
}

// Documents lists indexed sources by name.
func (e *Engine) Documents() []DocumentInfo {
	byID := map[string]*DocumentInfo{}
	pages := map[string]map[int]struct{}{}
	for _, p := range e.index.Passages() {
		info, ok := byID[p.SourceID]
		if !ok {
			info = &DocumentInfo{SourceID: p.SourceID, Name: filepath.Base(p.SourceID)}
			byID[p.SourceID] = info
			pages[p.SourceID] = map[int]struct{}{}
		}
		info.Passages++
		pages[p.SourceID][p.PageNumber] = struct{}{}
	}
	out := make([]DocumentInfo, 0, len(byID))
	for id, info := range byID {
		info.Pages = len(pages[id])
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (e *Engine) generate(ctx context.Context, rec domain.AnswerRecord, text string) (domain.AnswerRecord, error) {
	gctx, cancel := context.WithTimeout(ctx, e.opts.GenerateTimeout)
	defer cancel()

	start := time.Now()
	out, err := e.generator.Generate(gctx, text)
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			err = apperr.Cancelled("generation cancelled", err)
		case errors.Is(gctx.Err(), context.DeadlineExceeded):
			err = apperr.GenerationFailure(fmt.Sprintf("generation timed out after %s", e.opts.GenerateTimeout), err)
		default:
			err = apperr.GenerationFailure("generation failed", err)
		}
		return e.failed(rec, err), nil
	}
	e.logger.Debug("generated answer",
		zap.String("mode", string(rec.Mode)),
		zap.String("generator", e.generator.Name()),
		zap.Int("prompt_chars", len(text)),
		zap.Duration("took", time.Since(start)))
	rec.Answer = out
	return rec, nil
}

// failed turns err into a displayable record.
func (e *Engine) failed(rec domain.AnswerRecord, err error) domain.AnswerRecord {
	rec.Err = err
	var de *apperr.DomainError
	switch apperr.TypeOf(err) {
	case apperr.ErrorTypeEmptyIndex:
		rec.Answer = NoDocumentsAnswer
	case apperr.ErrorTypeNotFound:
		if errors.As(err, &de) {
			rec.Answer = de.Message
		}
	case apperr.ErrorTypeCancelled:
		rec.Answer = "The request was cancelled."
	default:
		rec.Answer = fmt.Sprintf("Sorry, I couldn't produce an answer: %v", err)
	}
	e.logger.Warn("answer failed",
		zap.String("mode", string(rec.Mode)),
		zap.String("query", rec.Query),
		zap.Error(err))
	return rec
}

// balancedSample takes passages round-robin across documents in first-seen
// order, each document in page then chunk order, until limit is reached.
func balancedSample(passages []domain.Passage, limit int) []domain.Passage {
	var order []string
	groups := map[string][]domain.Passage{}
	for _, p := range passages {
		if _, ok := groups[p.SourceID]; !ok {
			order = append(order, p.SourceID)
		}
		groups[p.SourceID] = append(groups[p.SourceID], p)
	}
	for _, id := range order {
		g := groups[id]
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].PageNumber != g[j].PageNumber {
				return g[i].PageNumber < g[j].PageNumber
			}
			return g[i].ChunkIndex < g[j].ChunkIndex
		})
	}

	var out []domain.Passage
	for round := 0; len(out) < limit; round++ {
		added := false
		for _, id := range order {
			if round < len(groups[id]) && len(out) < limit {
				out = append(out, groups[id][round])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return out
}
