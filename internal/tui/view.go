package tui

import (
	"fmt"
	"strings"

	"pritecards/internal/question"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("PRITE duplicate review"))
	b.WriteString("\n")

	if m.Done {
		resolved, total := m.wf.Progress()
		b.WriteString(StatusStyle.Render(fmt.Sprintf("All clusters resolved (%d/%d).", resolved, total)))
		b.WriteString("\n")
		return b.String()
	}
	if m.Cancelled {
		b.WriteString(ErrorStyle.Render("Review cancelled, nothing will be saved."))
		b.WriteString("\n")
		return b.String()
	}

	cluster, decision, err := m.wf.Current()
	if err != nil {
		b.WriteString(ErrorStyle.Render(err.Error()))
		b.WriteString("\n")
		return b.String()
	}

	resolved, total := m.wf.Progress()
	b.WriteString(InfoStyle.Render(fmt.Sprintf("Cluster %d of %d, %d resolved", m.wf.CurrentIndex()+1, total, resolved)))
	b.WriteString("\n\n")

	boxWidth := m.width - 4
	if boxWidth < 40 {
		boxWidth = 40
	}
	b.WriteString(BoxStyle.Width(boxWidth).Render("New question\n\n" + renderRecord(cluster.Candidate)))
	b.WriteString("\n")

	if best, ok := cluster.Best(); ok {
		header := fmt.Sprintf("Existing %s (score %.2f, %d signals)", best.Existing.ID, best.Similarity.Score, best.Similarity.MatchCount)
		b.WriteString(BoxStyle.Width(boxWidth).Render(header + "\n\n" + renderRecord(best.Existing)))
		b.WriteString("\n")
		if len(cluster.Matches) > 1 {
			b.WriteString(InfoStyle.Render(fmt.Sprintf("%d more candidate match(es)", len(cluster.Matches)-1)))
			b.WriteString("\n")
		}
	}
	for _, r := range cluster.Reasons {
		b.WriteString(InfoStyle.Render("  - " + r))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	strategy := "Strategy: " + string(decision.Strategy)
	if cluster.ReadOnly {
		strategy += " (locked)"
	}
	b.WriteString(HighlightStyle.Render(strategy))
	b.WriteString("\n\n")

	if m.Mode == ModeManual {
		b.WriteString(m.renderManual())
		b.WriteString("\n")
	}

	if m.Err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + m.Err.Error()))
		b.WriteString("\n")
	} else if m.Status != "" {
		b.WriteString(StatusStyle.Render(m.Status))
		b.WriteString("\n")
	}

	if m.Mode == ModeManual {
		b.WriteString(InfoStyle.Render("j/k move | space toggle | enter save | esc back"))
	} else {
		b.WriteString(InfoStyle.Render("n newer | m metadata | b keep both | u manual | enter resolve | s skip | a apply to all | q cancel"))
	}
	return b.String()
}

func (m Model) renderManual() string {
	var b strings.Builder
	b.WriteString("Take from the new question:\n")
	if len(m.fields) == 0 {
		b.WriteString(InfoStyle.Render("  (the new question has no fields to take)"))
		b.WriteString("\n")
	}
	for i, f := range m.fields {
		cursor := "  "
		if i == m.fieldCursor {
			cursor = "> "
		}
		mark := "[ ]"
		if m.selections[f] {
			mark = "[x]"
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, mark, f))
	}
	return b.String()
}

func renderRecord(r question.Record) string {
	var b strings.Builder
	b.WriteString(r.Text)
	b.WriteString("\n")
	for _, l := range r.Options.Letters() {
		b.WriteString(fmt.Sprintf("  %s. %s\n", l, r.Options.Get(l)))
	}
	meta := []string{}
	if r.CorrectAnswer != "" {
		meta = append(meta, "answer "+r.CorrectAnswer)
	}
	if r.Part != "" {
		meta = append(meta, "part "+r.Part)
	}
	if r.Year != "" {
		meta = append(meta, "year "+r.Year)
	}
	if r.Number != "" {
		meta = append(meta, "#"+r.Number)
	}
	if r.Category != "" {
		meta = append(meta, r.Category)
	}
	if len(meta) > 0 {
		b.WriteString(InfoStyle.Render(strings.Join(meta, " | ")))
	}
	return strings.TrimRight(b.String(), "\n")
}
