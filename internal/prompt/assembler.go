package prompt

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"formagent/internal/domain"
)

// DefaultBudget is the context budget in characters used when none is set.
const DefaultBudget = 6000

// InsufficientAnswer is the reply the model is told to give when the
// context does not support an answer.
const InsufficientAnswer = "I don't have enough information to answer that."

const qaTemplate = `You are an intelligent assistant helping users understand form documents like invoices, receipts, and tax forms.

Answer only from the context below. Do not use outside knowledge and do not invent values. If the context does not contain the answer, say "%s"

Context from documents:
%s

Question: %s

Answer (be specific and cite values when possible):`

const summaryTemplate = `Please provide a concise summary of the following form document(s).
Include key information such as:
- Document type
- Important dates
- Key entities (names, companies)
- Important amounts or values
- Main purpose or content

Use only the document content below. If an item is not present, write "not stated".

Document content:
%s

Summary:`

const holisticTemplate = `You are analyzing multiple form documents together to answer a comprehensive question.

Answer only from the context below. Do not use outside knowledge and do not invent values. If the context does not contain the answer, say "%s"

Context from multiple documents:
%s

Question: %s

Provide a detailed answer that synthesizes information across all documents. Compare documents, and include specific values and calculations (totals, differences, counts) when needed. Mention which source each value comes from.

Answer:`

// Assembler builds mode-specific prompts within a character budget.
type Assembler struct {
	budget int
}

func New(budget int) *Assembler {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Assembler{budget: budget}
}

func (a *Assembler) Budget() int { return a.budget }

// QA builds the grounded single-question prompt.
func (a *Assembler) QA(question string, passages []domain.ScoredPassage) string {
	return fmt.Sprintf(qaTemplate, InsufficientAnswer, a.contextBlock(unscored(a.FitScored(passages))), strings.TrimSpace(question))
}

// Summary builds the fixed-checklist summary prompt.
func (a *Assembler) Summary(passages []domain.Passage) string {
	return fmt.Sprintf(summaryTemplate, a.contextBlock(a.FitPassages(passages)))
}

// Holistic builds the cross-document analysis prompt.
func (a *Assembler) Holistic(question string, passages []domain.ScoredPassage) string {
	return fmt.Sprintf(holisticTemplate, InsufficientAnswer, a.contextBlock(unscored(a.FitScored(passages))), strings.TrimSpace(question))
}

// FitScored keeps the most similar passages whose combined text fits the
// budget. Kept passages retain their incoming order and their full text.
func (a *Assembler) FitScored(passages []domain.ScoredPassage) []domain.ScoredPassage {
	order := make([]int, len(passages))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return passages[order[i]].Score > passages[order[j]].Score
	})
	texts := make([]string, len(passages))
	for i := range passages {
		texts[i] = passages[i].Passage.Text
	}
	keep := a.fit(order, texts)
	var out []domain.ScoredPassage
	for i, sp := range passages {
		if keep[i] {
			out = append(out, sp)
		}
	}
	return out
}

// FitPassages keeps the lowest chunk indexes whose combined text fits the
// budget. Kept passages retain their incoming order.
func (a *Assembler) FitPassages(passages []domain.Passage) []domain.Passage {
	order := make([]int, len(passages))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return passages[order[i]].ChunkIndex < passages[order[j]].ChunkIndex
	})
	texts := make([]string, len(passages))
	for i := range passages {
		texts[i] = passages[i].Text
	}
	keep := a.fit(order, texts)
	var out []domain.Passage
	for i, p := range passages {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// fit walks order by priority and keeps passages until the next one would
// exceed the budget. The first passage is always kept; contextBlock cuts it
// down when it is larger than the whole budget.
func (a *Assembler) fit(order []int, texts []string) map[int]bool {
	keep := make(map[int]bool, len(order))
	used := 0
	for n, idx := range order {
		size := utf8.RuneCountInString(texts[idx])
		if used+size > a.budget && n > 0 {
			break
		}
		keep[idx] = true
		used += size
	}
	return keep
}

// contextBlock renders passages with source markers. Passage text longer
// than the budget is cut in the prompt only.
func (a *Assembler) contextBlock(passages []domain.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source %d: %s, page %d]\n%s", i+1, filepath.Base(p.SourceID), p.PageNumber, truncate(p.Text, a.budget))
	}
	return b.String()
}

func unscored(ps []domain.ScoredPassage) []domain.Passage {
	out := make([]domain.Passage, len(ps))
	for i := range ps {
		out[i] = ps[i].Passage
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
