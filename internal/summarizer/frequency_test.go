package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"formagent/internal/domain"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	out := s.Summarize("Invoice ACME paid. Invoice ACME due. Weather nice.", 2)
	assert.Equal(t, "Invoice ACME paid. Invoice ACME due.", out)
}

func TestSummarize_LinesCountAsSentences(t *testing.T) {
	s := NewFrequencySummarizer()
	out := s.Summarize("Total due\nTotal due\nOther line", 5)
	assert.Equal(t, "Total due Other line", out)
}

func TestSummarize_Limits(t *testing.T) {
	s := NewFrequencySummarizer()
	assert.Empty(t, s.Summarize("Anything at all.", 0))
	assert.Equal(t, "...", s.Summarize("...", 3))
}

func TestOverview_JoinsPassages(t *testing.T) {
	s := NewFrequencySummarizer()
	out := s.Overview([]domain.Passage{
		{Text: "Invoice total: $500", SourceID: "A.pdf"},
		{Text: "Invoice total: $300", SourceID: "B.pdf"},
	}, 2)
	assert.Contains(t, out, "Invoice total: $500")
	assert.Contains(t, out, "Invoice total: $300")
}
