package importer

import (
	"time"

	"pritecards/internal/dedup"
	"pritecards/internal/question"
	"pritecards/internal/session"
)

// View is the API representation of an import session.
type View struct {
	ID            string                    `json:"id"`
	State         dedup.State               `json:"state"`
	CurrentIndex  int                       `json:"current_index"`
	Resolved      int                       `json:"resolved"`
	Total         int                       `json:"total"`
	Config        dedup.Config              `json:"config"`
	Stats         StatsView                 `json:"stats"`
	NonDuplicates []question.Record         `json:"non_duplicates"`
	Clusters      []ClusterView             `json:"clusters"`
	ImportErrors  []question.ImportRowError `json:"import_errors,omitempty"`
	Committed     *question.SaveReport      `json:"committed,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

type StatsView struct {
	Candidates        int   `json:"candidates"`
	Existing          int   `json:"existing"`
	Comparisons       int   `json:"comparisons"`
	Duplicates        int   `json:"duplicates"`
	SkippedNoText     int   `json:"skipped_no_text"`
	RecoveredFailures int   `json:"recovered_failures"`
	ElapsedMS         int64 `json:"elapsed_ms"`
}

type ClusterView struct {
	Index     int             `json:"index"`
	Candidate question.Record `json:"candidate"`
	Matches   []dedup.Match   `json:"matches"`
	Reasons   []string        `json:"reasons"`
	Decision  dedup.Decision  `json:"decision"`
	Current   bool            `json:"current"`
	ReadOnly  bool            `json:"read_only,omitempty"`
}

func newView(sess *session.Session, w *dedup.Workflow) *View {
	resolved, total := w.Progress()
	clusters := w.Clusters()
	decisions := w.Decisions()

	out := &View{
		ID:            sess.ID,
		State:         w.State(),
		CurrentIndex:  w.CurrentIndex(),
		Resolved:      resolved,
		Total:         total,
		Config:        sess.Config,
		NonDuplicates: w.NonDuplicates(),
		Clusters:      make([]ClusterView, 0, len(clusters)),
		ImportErrors:  sess.ImportErrors,
		Committed:     sess.Committed,
		CreatedAt:     sess.CreatedAt,
		UpdatedAt:     sess.UpdatedAt,
		Stats: StatsView{
			Candidates:        sess.Stats.Candidates,
			Existing:          sess.Stats.Existing,
			Comparisons:       sess.Stats.Comparisons,
			Duplicates:        sess.Stats.Duplicates,
			SkippedNoText:     sess.Stats.SkippedNoText,
			RecoveredFailures: sess.Stats.RecoveredFailures,
			ElapsedMS:         sess.Stats.Elapsed.Milliseconds(),
		},
	}
	if out.NonDuplicates == nil {
		out.NonDuplicates = []question.Record{}
	}
	for i, c := range clusters {
		out.Clusters = append(out.Clusters, ClusterView{
			Index:     i,
			Candidate: c.Candidate,
			Matches:   c.Matches,
			Reasons:   c.Reasons,
			Decision:  decisions[i],
			Current:   w.State() == dedup.StateReviewing && i == w.CurrentIndex(),
			ReadOnly:  c.ReadOnly,
		})
	}
	return out
}
