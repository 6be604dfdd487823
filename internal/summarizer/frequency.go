package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"formagent/internal/domain"
)

// FrequencySummarizer picks the most representative lines of a corpus by
// token frequency, stopwords filtered. It needs no model and is used for the
// overview shown after ingestion.
type FrequencySummarizer struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based sentence ranker.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.,-][\p{L}\p{N}]+)*`),
		// Form text is often line oriented, so a line break also ends a sentence.
		sentencePattern: regexp.MustCompile(`[^.!?\n]+(?:[.!?]+|\n|$)`),
		stopwords:       defaultStopwords(),
	}
}

// Overview summarizes passages in the order given.
func (s *FrequencySummarizer) Overview(passages []domain.Passage, maxSentences int) string {
	var b strings.Builder
	for _, p := range passages {
		b.WriteString(p.Text)
		b.WriteString("\n")
	}
	return s.Summarize(b.String(), maxSentences)
}

// Summarize returns up to maxSentences of text, ranked by normalised token
// frequency and emitted in their original order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		return ""
	}
	var sentences []string
	seen := map[string]struct{}{}
	for _, raw := range s.sentencePattern.FindAllString(text, -1) {
		sent := strings.TrimSpace(raw)
		if len(s.tokens(sent)) == 0 {
			continue
		}
		// overlapping chunks repeat text; keep the first copy
		if _, dup := seen[sent]; dup {
			continue
		}
		seen[sent] = struct{}{}
		sentences = append(sentences, sent)
	}
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			if _, ok := s.stopwords[tok]; ok {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// damp long lines
		score /= math.Sqrt(float64(len(toks)))
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(maxSentences, len(scores))

	selected := make([]int, n)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " ")
}

func (s *FrequencySummarizer) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"page", "please", "no", "yes",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
