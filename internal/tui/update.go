package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"pritecards/internal/dedup"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.cancel()
		}
		if m.Mode == ModeManual {
			return m.handleManualKey(msg)
		}
		return m.handleReviewKey(msg)
	}
	return m, nil
}

func (m Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.Done {
		return m, tea.Quit
	}
	m.Err = nil

	switch msg.String() {
	case "q", "esc":
		return m.cancel()
	case "n":
		return m.setStrategy(dedup.StrategyNewer)
	case "m":
		return m.setStrategy(dedup.StrategyMetadata)
	case "b":
		return m.setStrategy(dedup.StrategyKeepBoth)
	case "u":
		return m.enterManual()
	case "enter", "r":
		if err := m.wf.ResolveCurrentAndAdvance(); err != nil {
			m.Err = err
			return m, nil
		}
		m.Status = "resolved"
		return m.afterStep()
	case "s":
		if err := m.wf.SkipCurrent(); err != nil {
			m.Err = err
			return m, nil
		}
		m.Status = "skipped, both records kept"
		return m.afterStep()
	case "a":
		if err := m.wf.ApplyStrategyToAllRemaining(); err != nil {
			m.Err = err
			return m, nil
		}
		m.Status = "applied to all remaining clusters"
		return m.afterStep()
	}
	return m, nil
}

func (m Model) handleManualKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Mode = ModeReview
		m.Status = "manual selection discarded"
		return m, nil
	case "up", "k":
		if m.fieldCursor > 0 {
			m.fieldCursor--
		}
	case "down", "j":
		if m.fieldCursor < len(m.fields)-1 {
			m.fieldCursor++
		}
	case " ", "space", "x":
		if len(m.fields) == 0 {
			return m, nil
		}
		field := m.fields[m.fieldCursor]
		next := m.selections.Clone()
		if next == nil {
			next = dedup.ManualSelections{}
		}
		if next[field] {
			delete(next, field)
		} else {
			next[field] = true
		}
		m.selections = next
	case "enter":
		if err := m.wf.SetManualSelections(m.selections); err != nil {
			m.Err = err
			return m, nil
		}
		m.Mode = ModeReview
		m.Status = fmt.Sprintf("manual: %d field(s) from the new question", countSelected(m.selections))
	}
	return m, nil
}

func (m Model) setStrategy(s dedup.Strategy) (tea.Model, tea.Cmd) {
	if err := m.wf.SetStrategy(s); err != nil {
		m.Err = err
		return m, nil
	}
	m.Status = "strategy: " + string(s)
	return m, nil
}

func (m Model) enterManual() (tea.Model, tea.Cmd) {
	if err := m.wf.SetStrategy(dedup.StrategyManual); err != nil {
		m.Err = err
		return m, nil
	}
	cluster, decision, err := m.wf.Current()
	if err != nil {
		m.Err = err
		return m, nil
	}
	m.Mode = ModeManual
	m.fields = manualFields(cluster)
	m.fieldCursor = 0
	m.selections = decision.ManualSelections.Clone()
	m.Status = "choose fields to take from the new question"
	return m, nil
}

func (m Model) afterStep() (tea.Model, tea.Cmd) {
	if m.wf.State() == dedup.StateResolved {
		m.Done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) cancel() (tea.Model, tea.Cmd) {
	if m.wf.State() != dedup.StateCancelled && !m.Done {
		_ = m.wf.Cancel()
		m.Cancelled = true
	}
	return m, tea.Quit
}

func countSelected(sel dedup.ManualSelections) int {
	n := 0
	for _, v := range sel {
		if v {
			n++
		}
	}
	return n
}
