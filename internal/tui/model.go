package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragpipe/internal/domain"
	"ragpipe/internal/textutil"
)

// Chatter is the TUI-facing subset of the pipeline service.
type Chatter interface {
	Query(ctx context.Context, question string) (domain.QueryResult, error)
}

// answerMsg carries a finished query back into the update loop.
type answerMsg struct {
	question string
	result   domain.QueryResult
	err      error
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	service  Chatter
	input    textinput.Model
	viewport viewport.Model
	title    string
	summary  string
	status   string

	answer       string
	sources      []domain.Source
	cursor       int
	lastQuestion string
	busy         bool
	ready        bool
}

// New creates a chat model. title and summary are shown above the transcript.
func New(ctx context.Context, service Chatter, title, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 1000
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  service,
		input:    ti,
		viewport: vp,
		title:    title,
		summary:  summary,
		status:   "Ready. Up/Down cycles sources, Ctrl+C quits.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Query(m.ctx, question)
		return answerMsg{question: question, result: res, err: err}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around transcript and input boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header+summary, status, input, spacer
		vh := msg.Height - reserved
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error (%s): %v", domain.Kind(msg.err), msg.err)
			return m, nil
		}
		m.answer = msg.result.Answer
		m.sources = msg.result.Sources
		m.cursor = 0
		m.lastQuestion = msg.question
		m.status = fmt.Sprintf("Answered %q from %d source(s)", msg.question, len(m.sources))
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoTop()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.busy {
				return m, nil
			}
			m.busy = true
			m.input.Reset()
			m.status = "Thinking..."
			return m, m.ask(q)
		case "down":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.sources)
				m.viewport.SetContent(m.renderTranscript())
				return m, nil
			}
		case "up":
			if len(m.sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.sources)) % len(m.sources)
				m.viewport.SetContent(m.renderTranscript())
				return m, nil
			}
		case "pgdown", "pgup":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if m.answer == "" && len(m.sources) == 0 {
		return "No answer yet."
	}
	wrap := lipgloss.NewStyle().Width(max(10, m.viewport.Width-4))
	var b strings.Builder
	b.WriteString(labelStyle.Render("Q: "+m.lastQuestion) + "\n\n")
	b.WriteString(wrap.Render(m.answer))
	if len(m.sources) == 0 {
		b.WriteString("\n\nNo sources.")
		return b.String()
	}
	src := m.sources[m.cursor]
	title := fmt.Sprintf("Source %d/%d  %s", m.cursor+1, len(m.sources), src.Filename)
	if src.Score != nil {
		title += fmt.Sprintf("  score=%.3f", *src.Score)
	}
	b.WriteString("\n\n" + labelStyle.Render(title) + "\n")
	b.WriteString(wrap.Render(highlightBestSentence(src.TextPreview, m.lastQuestion)))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := textutil.Sentences(text)
	best := bestSentence(sentences, query)
	if best < 0 {
		return strings.Join(sentences, " ")
	}
	sentences[best] = highlightStyle.Render(sentences[best])
	return strings.Join(sentences, " ")
}

// bestSentence returns the index of the sentence sharing the most words with
// query, or -1 when the query has no words.
func bestSentence(sentences []string, query string) int {
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 || len(sentences) == 0 {
		return -1
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	return bestIdx
}

func toTokenSet(s string) map[string]struct{} {
	tokens := textutil.Words(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range textutil.Words(sentence) {
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
