package chunker

import (
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"formagent/internal/apperr"
	"formagent/internal/domain"
)

// DefaultSeparators are tried in order: paragraph break, line break, space,
// then arbitrary character.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Recursive splits page text into overlapping passages, breaking on the most
// natural separator that keeps every piece within the chunk size.
type Recursive struct {
	chunkSize  int
	overlap    int
	separators []string
	logger     *zap.Logger
}

// NewRecursive creates a recursive character chunker. Sizes are measured in
// characters (runes).
func NewRecursive(chunkSize, overlap int, logger *zap.Logger) (*Recursive, error) {
	if chunkSize <= 0 {
		return nil, apperr.Config("chunk_size must be positive", nil).WithDetail("chunk_size", chunkSize)
	}
	if overlap < 0 {
		return nil, apperr.Config("chunk_overlap must not be negative", nil).WithDetail("chunk_overlap", overlap)
	}
	if overlap >= chunkSize {
		return nil, apperr.Config("chunk_overlap must be smaller than chunk_size", nil).
			WithDetail("chunk_size", chunkSize).
			WithDetail("chunk_overlap", overlap)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recursive{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
		logger:     logger,
	}, nil
}

// Split chunks every page independently. Pages that are not valid UTF-8 are
// reported in Skipped and do not stop the batch.
func (c *Recursive) Split(pages []domain.Page) domain.SplitResult {
	var res domain.SplitResult
	for _, page := range pages {
		if !utf8.ValidString(page.Text) {
			c.logger.Warn("skipping undecodable page",
				zap.String("source", page.SourceID),
				zap.Int("page", page.PageNumber))
			res.Skipped = append(res.Skipped, page)
			continue
		}
		runes := []rune(page.Text)
		for i, sp := range c.spans(runes) {
			res.Passages = append(res.Passages, domain.Passage{
				Text:       string(runes[sp.start:sp.end]),
				SourceID:   page.SourceID,
				PageNumber: page.PageNumber,
				ChunkIndex: i,
			})
		}
	}
	return res
}

type span struct {
	start int
	end   int
}

// spans returns the chunk windows over runes. Every window is at most
// chunkSize long, and window i+1 starts inside window i when they overlap.
func (c *Recursive) spans(runes []rune) []span {
	n := len(runes)
	start := skipSpace(runes, 0, n)
	if start == n {
		return nil
	}
	bounds := c.boundaries(runes)

	var out []span
	for {
		end := furthestBoundary(bounds, start, start+c.chunkSize)
		if end <= start {
			end = min(n, start+c.chunkSize)
		}
		textEnd := end
		for textEnd > start && isSpace(runes[textEnd-1]) {
			textEnd--
		}
		out = append(out, span{start: start, end: textEnd})

		next := skipSpace(runes, end, n)
		if next == n {
			return out
		}

		s := max(textEnd-c.overlap, start+1)
		// The unit holding the next unseen character must fit after s.
		if nb := firstBoundaryAfter(bounds, next); nb-s > c.chunkSize {
			s = nb - c.chunkSize
		}
		if p := wordStart(runes, s, textEnd); p >= 0 {
			s = p
		}
		start = skipSpace(runes, s, next)
	}
}

// boundaries returns the sorted end offsets of the atomic units produced by
// recursive separator splitting. Every unit is at most chunkSize long.
func (c *Recursive) boundaries(runes []rune) []int {
	var out []int
	c.split(runes, 0, len(runes), c.separators, &out)
	return out
}

func (c *Recursive) split(runes []rune, lo, hi int, seps []string, out *[]int) {
	sep, rest := pickSeparator(runes, lo, hi, seps)
	if sep == nil {
		for i := lo + 1; i <= hi; i++ {
			*out = append(*out, i)
		}
		return
	}
	segStart := lo
	for i := lo; i <= hi; {
		at := -1
		if i < hi {
			at = indexRunes(runes, i, hi, sep)
		}
		segEnd := hi
		if at >= 0 {
			segEnd = at + len(sep)
		}
		if segEnd > segStart {
			if segEnd-segStart <= c.chunkSize {
				*out = append(*out, segEnd)
			} else {
				c.split(runes, segStart, segEnd, rest, out)
			}
		}
		if at < 0 {
			break
		}
		segStart = segEnd
		i = segEnd
	}
}

// pickSeparator returns the first separator present in runes[lo:hi] and the
// separators left for recursion. A nil separator means split per character.
func pickSeparator(runes []rune, lo, hi int, seps []string) ([]rune, []string) {
	for i, s := range seps {
		if s == "" {
			return nil, nil
		}
		r := []rune(s)
		if indexRunes(runes, lo, hi, r) >= 0 {
			return r, seps[i+1:]
		}
	}
	return nil, nil
}

func indexRunes(runes []rune, lo, hi int, sep []rune) int {
	for i := lo; i+len(sep) <= hi; i++ {
		match := true
		for j, r := range sep {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// furthestBoundary returns the largest boundary in (lo, hi], or -1.
func furthestBoundary(bounds []int, lo, hi int) int {
	best := -1
	for _, b := range bounds {
		if b > hi {
			break
		}
		if b > lo {
			best = b
		}
	}
	return best
}

func firstBoundaryAfter(bounds []int, pos int) int {
	for _, b := range bounds {
		if b > pos {
			return b
		}
	}
	return pos + 1
}

// wordStart returns the first offset in [lo, hi) that begins a word, or -1.
func wordStart(runes []rune, lo, hi int) int {
	for p := lo; p < hi; p++ {
		if p > 0 && isSpace(runes[p-1]) && !isSpace(runes[p]) {
			return p
		}
	}
	return -1
}

func skipSpace(runes []rune, pos, limit int) int {
	for pos < limit && isSpace(runes[pos]) {
		pos++
	}
	return pos
}

func isSpace(r rune) bool { return unicode.IsSpace(r) }
