package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"pritecards/internal/dedup"
)

// Mode is the input mode of the review screen.
type Mode string

const (
	ModeReview Mode = "review"
	ModeManual Mode = "manual"
)

// Model drives a dedup.Workflow from the keyboard. The workflow is shared
// with the caller, which reads it back after the program exits.
type Model struct {
	wf *dedup.Workflow

	Mode        Mode
	fields      []string
	fieldCursor int
	selections  dedup.ManualSelections

	Status    string
	Err       error
	Done      bool
	Cancelled bool

	width int
}

// NewModel starts review of w. A pending workflow is begun here.
func NewModel(w *dedup.Workflow) (Model, error) {
	if w.State() == dedup.StatePending {
		if err := w.Begin(); err != nil {
			return Model{}, err
		}
	}
	m := Model{wf: w, Mode: ModeReview, width: 80}
	if w.State() != dedup.StateReviewing {
		m.Done = true
	}
	return m, nil
}

func (m Model) Init() tea.Cmd {
	if m.Done {
		return tea.Quit
	}
	return nil
}

// Workflow returns the reviewed workflow.
func (m Model) Workflow() *dedup.Workflow { return m.wf }

// manualFields lists the fields the candidate can contribute, in display
// order. Fields the candidate leaves empty are not offered.
func manualFields(c dedup.Cluster) []string {
	cand := c.Candidate
	out := make([]string, 0, 12)
	add := func(field, value string) {
		if value != "" {
			out = append(out, field)
		}
	}
	add(dedup.FieldText, cand.Text)
	for _, l := range cand.Options.Letters() {
		out = append(out, dedup.OptionField(l))
	}
	add(dedup.FieldCorrectAnswer, cand.CorrectAnswer)
	add(dedup.FieldExplanation, cand.Explanation)
	add(dedup.FieldCategory, cand.Category)
	add(dedup.FieldPart, cand.Part)
	add(dedup.FieldYear, cand.Year)
	add(dedup.FieldNumber, cand.Number)
	return out
}
