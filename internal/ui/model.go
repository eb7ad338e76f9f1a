// Package ui implements a small local-debugging TUI (inspect) that lists
// ingested documents and lets an operator run ad-hoc queries against the
// cascade, showing the transparency record for each one.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cascadedocs/cascade/pkg/docengine"
)

// history keeps the last few queries run this session, newest first.
const historyLimit = 5

type searchResultMsg struct {
	query  string
	result docengine.SearchResult
	err    error
}

type documentsMsg struct {
	docs []docengine.DocumentSummary
	err  error
}

// Model is the bubbletea model for the inspect TUI.
type Model struct {
	engine *docengine.Engine
	styles Styles

	input   textinput.Model
	docs    []docengine.DocumentSummary
	history []searchResultMsg

	err      error
	quitting bool
}

// New builds an inspect Model over an already-open Engine.
func New(engine *docengine.Engine) Model {
	input := textinput.New()
	input.Placeholder = "type a query and press enter"
	input.Focus()
	input.CharLimit = 256

	return Model{
		engine: engine,
		styles: DefaultStyles(),
		input:  input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.loadDocuments
}

func (m Model) loadDocuments() tea.Msg {
	docs, err := m.engine.ListDocuments(context.Background())
	return documentsMsg{docs: docs, err: err}
}

func (m Model) runSearch(query string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.engine.Search(context.Background(), query, "", 0, 0)
		return searchResultMsg{query: query, result: result, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+r":
			return m, m.loadDocuments
		case "enter":
			query := strings.TrimSpace(m.input.Value())
			if query == "" {
				return m, nil
			}
			m.input.SetValue("")
			return m, m.runSearch(query)
		}

	case documentsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.docs = msg.docs
		}
		return m, nil

	case searchResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.history = append([]searchResultMsg{msg}, m.history...)
			if len(m.history) > historyLimit {
				m.history = m.history[:historyLimit]
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Header.Render("cascade-docs inspect"))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Documents"))
	b.WriteString("\n")
	if len(m.docs) == 0 {
		b.WriteString(m.styles.Dim.Render("  (none ingested yet)"))
	}
	for _, d := range m.docs {
		b.WriteString(fmt.Sprintf("  %-20s %-8s %d section(s)\n", d.Name, d.Version, d.Sections))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Query"))
	b.WriteString("\n  ")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(m.styles.Error.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
	}

	b.WriteString(m.styles.Label.Render("Recent queries"))
	b.WriteString("\n")
	if len(m.history) == 0 {
		b.WriteString(m.styles.Dim.Render("  (none yet)"))
	}
	for _, h := range m.history {
		t := h.result.Transparency
		status := "miss"
		if h.result.Found {
			status = fmt.Sprintf("%d result(s) via %s", len(h.result.Results), t.Method)
		}
		b.WriteString(fmt.Sprintf("  %q -> %s (%.1fms, path: %s)\n",
			h.query, status, t.LatencyMS, strings.Join(t.SearchPath, ">")))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Dim.Render("enter: search  ctrl+r: refresh documents  esc: quit"))

	return b.String()
}
