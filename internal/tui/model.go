package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"formagent/internal/domain"
	"formagent/internal/service"
)

// EnginePort is the TUI-facing subset of the answer engine.
type EnginePort interface {
	Ask(ctx context.Context, question string) (domain.AnswerRecord, error)
	Analyze(ctx context.Context, question string) (domain.AnswerRecord, error)
	Summarize(ctx context.Context, documentName string) (domain.AnswerRecord, error)
	Documents() []service.DocumentInfo
}

type view int

const (
	viewAsk view = iota
	viewSummarize
	viewAnalyze
	viewDocuments
)

var views = []struct {
	title       string
	placeholder string
}{
	viewAsk:       {"Ask", "Ask a question about your documents"},
	viewSummarize: {"Summarize", "Document name (empty summarizes everything)"},
	viewAnalyze:   {"Analyze", "Ask something that spans several documents"},
	viewDocuments: {"Documents", "Press Enter to refresh the document list"},
}

const previewChars = 200

// answerMsg carries a finished engine call back into Update.
type answerMsg struct {
	record domain.AnswerRecord
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx      context.Context
	engine   EnginePort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	view     view
	overview string
	status   string
	busy     bool
	ready    bool
	record   *domain.AnswerRecord
}

// New creates a new TUI model. overview is shown under the header.
func New(ctx context.Context, engine EnginePort, overview string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = views[viewAsk].placeholder
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ctx:      ctx,
		engine:   engine,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		overview: overview,
		status:   "Ready. Tab switches mode, Enter runs it.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and overview, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderContent())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.record = nil
		} else {
			rec := msg.record
			m.record = &rec
			m.status = statusFor(rec)
		}
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "tab":
			m.switchView((m.view + 1) % view(len(views)))
			return m, nil
		case "shift+tab":
			m.switchView((m.view + view(len(views)) - 1) % view(len(views)))
			return m, nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case "enter":
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) switchView(v view) {
	m.view = v
	m.record = nil
	m.input.Placeholder = views[v].placeholder
	m.status = views[v].title + " mode"
	m.viewport.SetContent(m.renderContent())
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	q := strings.TrimSpace(m.input.Value())
	if m.view == viewDocuments {
		m.viewport.SetContent(m.renderContent())
		m.status = fmt.Sprintf("%d documents indexed", len(m.engine.Documents()))
		return m, nil
	}
	if q == "" && m.view != viewSummarize {
		m.status = "Type a question first."
		return m, nil
	}
	m.busy = true
	m.status = "Thinking..."
	return m, tea.Batch(m.spinner.Tick, m.run(m.view, q))
}

func (m Model) run(v view, q string) tea.Cmd {
	ctx, engine := m.ctx, m.engine
	return func() tea.Msg {
		var rec domain.AnswerRecord
		var err error
		switch v {
		case viewAsk:
			rec, err = engine.Ask(ctx, q)
		case viewAnalyze:
			rec, err = engine.Analyze(ctx, q)
		default:
			rec, err = engine.Summarize(ctx, q)
		}
		return answerMsg{record: rec, err: err}
	}
}

func statusFor(rec domain.AnswerRecord) string {
	if rec.Err != nil {
		return "Could not answer: " + rec.Err.Error()
	}
	return fmt.Sprintf("%s done, %d sources", views[modeView(rec.Mode)].title, len(rec.Sources))
}

func modeView(mode domain.Mode) view {
	switch mode {
	case domain.ModeSummarize:
		return viewSummarize
	case domain.ModeAnalyze:
		return viewAnalyze
	}
	return viewAsk
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	var tabs []string
	for i, v := range views {
		style := tabStyle
		if view(i) == m.view {
			style = activeTabStyle
		}
		tabs = append(tabs, style.Render(v.title))
	}
	header := lipgloss.NewStyle().Bold(true).Render("Form Agent") + "  " + strings.Join(tabs, " ")
	overview := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.overview)
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	status = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + overview + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderContent() string {
	if m.view == viewDocuments {
		return renderDocuments(m.engine.Documents())
	}
	if m.record == nil {
		return "No answer yet."
	}
	return renderRecord(*m.record)
}

func renderDocuments(docs []service.DocumentInfo) string {
	if len(docs) == 0 {
		return "No documents indexed."
	}
	var b strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&b, "%d. %s  (%d pages, %d passages)\n", i+1, d.Name, d.Pages, d.Passages)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRecord(rec domain.AnswerRecord) string {
	var b strings.Builder
	b.WriteString(rec.Answer)
	if len(rec.Sources) == 0 {
		return b.String()
	}
	b.WriteString("\n\n")
	b.WriteString(sourceTitleStyle.Render("Sources"))
	for i, p := range rec.Sources {
		fmt.Fprintf(&b, "\n\n[%d] %s, page %d\n", i+1, filepath.Base(p.SourceID), p.PageNumber)
		b.WriteString(highlightBestSentence(p.Preview(previewChars), rec.Query))
	}
	return b.String()
}

var (
	resultBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceTitleStyle = lipgloss.NewStyle().Underline(true)
	tabStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Padding(0, 1)
	activeTabStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Padding(0, 1)
	unicodeWordRe    = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.,-][\p{L}\p{N}]+)*`)
	sentenceRe       = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// highlightBestSentence emphasises the sentence sharing most tokens with query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
