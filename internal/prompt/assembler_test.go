package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formagent/internal/domain"
)

func scored(src, text string, score float64) domain.ScoredPassage {
	return domain.ScoredPassage{Passage: domain.Passage{Text: text, SourceID: src, PageNumber: 1}, Score: score}
}

func TestQA_ContainsContextQuestionAndGrounding(t *testing.T) {
	a := New(1000)
	p := a.QA("What is the total on A?", []domain.ScoredPassage{
		scored("data/A.pdf", "Invoice total: $500, due 2024-01-15", 0.9),
	})

	assert.Contains(t, p, "Invoice total: $500, due 2024-01-15")
	assert.Contains(t, p, "Question: What is the total on A?")
	assert.Contains(t, p, "[Source 1: A.pdf, page 1]")
	assert.Contains(t, p, "Answer only from the context")
	assert.Contains(t, p, InsufficientAnswer)
}

func TestPrompts_AreDeterministic(t *testing.T) {
	a := New(1000)
	ps := []domain.ScoredPassage{scored("a.pdf", "one", 0.5), scored("b.pdf", "two", 0.4)}
	assert.Equal(t, a.QA("q", ps), a.QA("q", ps))
	assert.Equal(t, a.Holistic("q", ps), a.Holistic("q", ps))
	plain := []domain.Passage{ps[0].Passage, ps[1].Passage}
	assert.Equal(t, a.Summary(plain), a.Summary(plain))
}

func TestSummary_HasChecklist(t *testing.T) {
	p := New(0).Summary([]domain.Passage{{Text: "W-2 Wage and Tax Statement 2023", SourceID: "w2.pdf", PageNumber: 1}})
	for _, item := range []string{"Document type", "Important dates", "Key entities", "Important amounts or values", "Main purpose"} {
		assert.Contains(t, p, item)
	}
	assert.Contains(t, p, "W-2 Wage and Tax Statement 2023")
}

func TestHolistic_InvitesSynthesis(t *testing.T) {
	p := New(1000).Holistic("total of all invoices", []domain.ScoredPassage{
		scored("A.pdf", "Invoice total: $500", 0.7),
		scored("B.pdf", "Invoice total: $300", 0.6),
	})
	assert.Contains(t, p, "synthesizes information across all documents")
	assert.Contains(t, p, "calculations")
	assert.Contains(t, p, "Invoice total: $500")
	assert.Contains(t, p, "Invoice total: $300")
	assert.Contains(t, p, InsufficientAnswer)
}

func TestFitScored_DropsLowestSimilarityFirst(t *testing.T) {
	a := New(25)
	ps := []domain.ScoredPassage{
		scored("low.pdf", strings.Repeat("l", 10), 0.1),
		scored("high.pdf", strings.Repeat("h", 10), 0.9),
		scored("mid.pdf", strings.Repeat("m", 10), 0.5),
	}

	kept := a.FitScored(ps)
	require.Len(t, kept, 2)
	assert.Equal(t, "high.pdf", kept[0].Passage.SourceID)
	assert.Equal(t, "mid.pdf", kept[1].Passage.SourceID)
}

func TestFitScored_KeepsIncomingOrder(t *testing.T) {
	a := New(100)
	ps := []domain.ScoredPassage{scored("b.pdf", "b", 0.2), scored("a.pdf", "a", 0.8)}
	kept := a.FitScored(ps)
	require.Len(t, kept, 2)
	assert.Equal(t, "b.pdf", kept[0].Passage.SourceID)
}

func TestFitPassages_DropsHighestChunkIndexFirst(t *testing.T) {
	a := New(20)
	ps := []domain.Passage{
		{Text: strings.Repeat("x", 10), SourceID: "a.pdf", ChunkIndex: 2},
		{Text: strings.Repeat("y", 10), SourceID: "a.pdf", ChunkIndex: 0},
		{Text: strings.Repeat("z", 10), SourceID: "b.pdf", ChunkIndex: 1},
	}

	kept := a.FitPassages(ps)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].ChunkIndex)
	assert.Equal(t, 1, kept[1].ChunkIndex)
}

func TestFit_AlwaysKeepsOnePassage(t *testing.T) {
	a := New(5)
	kept := a.FitScored([]domain.ScoredPassage{scored("big.pdf", "0123456789", 0.3)})
	require.Len(t, kept, 1)
	assert.Equal(t, "0123456789", kept[0].Passage.Text)

	keptPlain := a.FitPassages([]domain.Passage{{Text: "abcdefgh", SourceID: "big.pdf"}})
	require.Len(t, keptPlain, 1)
	assert.Equal(t, "abcdefgh", keptPlain[0].Text)

	assert.Empty(t, a.FitScored(nil))
	assert.Empty(t, a.FitPassages(nil))
}

func TestOversizedPassage_CutOnlyInPrompt(t *testing.T) {
	a := New(5)
	big := scored("big.pdf", "0123456789", 0.3)

	qa := a.QA("q", []domain.ScoredPassage{big})
	assert.Contains(t, qa, "[Source 1: big.pdf, page 1]\n01234\n")
	assert.NotContains(t, qa, "012345")

	summary := a.Summary([]domain.Passage{{Text: "abcdefgh", SourceID: "big.pdf", PageNumber: 1}})
	assert.Contains(t, summary, "abcde")
	assert.NotContains(t, summary, "abcdef")

	assert.Equal(t, "0123456789", big.Passage.Text)
}

func TestQA_RespectsBudget(t *testing.T) {
	a := New(30)
	p := a.QA("q", []domain.ScoredPassage{
		scored("a.pdf", strings.Repeat("a", 20), 0.9),
		scored("b.pdf", strings.Repeat("b", 20), 0.8),
	})
	assert.Contains(t, p, strings.Repeat("a", 20))
	assert.NotContains(t, p, strings.Repeat("b", 20))
}
