package domain

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Page is one page of raw document text as supplied by a document source.
type Page struct {
	Text       string
	SourceID   string
	PageNumber int
}

// Passage is a bounded span of document text with its provenance.
type Passage struct {
	Text       string `json:"text"`
	SourceID   string `json:"source_id"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
}

// Key identifies a passage inside an index. Two passages with the same
// source, page and chunk index are the same entry.
func (p Passage) Key() string {
	return fmt.Sprintf("%s#%d#%d", p.SourceID, p.PageNumber, p.ChunkIndex)
}

// Preview returns at most n characters of the passage text on one line.
func (p Passage) Preview(n int) string {
	text := strings.Join(strings.Fields(p.Text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}

// ScoredPassage is a retrieved passage with its similarity to the query.
type ScoredPassage struct {
	Passage Passage
	Score   float64
}

// Mode names the answering mode that produced an AnswerRecord.
type Mode string

const (
	ModeAsk       Mode = "ask"
	ModeSummarize Mode = "summarize"
	ModeAnalyze   Mode = "analyze"
)

// AnswerRecord is the result of one answering call. When Err is set the
// record describes a failure and Answer holds a displayable explanation.
type AnswerRecord struct {
	Mode    Mode
	Query   string
	Answer  string
	Sources []Passage
	Err     error
}

// Embedder converts free text into a fixed-length vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Preparer is implemented by embedders that need a pass over the corpus
// before they can embed (e.g. TF-IDF vocabularies). Reset discards a
// preparation so the next Prepare starts over.
type Preparer interface {
	Prepare(corpus []string) error
	Reset()
}

// Generator turns a prompt into model output.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// SplitResult is the outcome of chunking a batch of pages. Skipped holds
// pages whose text could not be decoded.
type SplitResult struct {
	Passages []Passage
	Skipped  []Page
}

// Chunker splits pages into passages suitable for retrieval indexing.
type Chunker interface {
	Split(pages []Page) SplitResult
}
