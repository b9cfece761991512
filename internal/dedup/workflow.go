package dedup

import (
	"errors"
	"fmt"

	"pritecards/internal/question"
)

// State of a resolution workflow.
type State string

const (
	StatePending   State = "pending"
	StateReviewing State = "reviewing"
	StateResolved  State = "resolved"
	StateCancelled State = "cancelled"
)

// Decision is the operator's (or the default) choice for one cluster.
type Decision struct {
	Strategy         Strategy         `json:"strategy"`
	ManualSelections ManualSelections `json:"manual_selections,omitempty"`
	Resolved         bool             `json:"resolved"`
}

func (d Decision) clone() Decision {
	d.ManualSelections = d.ManualSelections.Clone()
	return d
}

// Workflow sequences the per-cluster review of a scan result and assembles
// the final batch. It is owned by a single caller and is not safe for
// concurrent use; every transition replaces the decision list wholesale.
type Workflow struct {
	nonDuplicates []question.Record
	clusters      []Cluster
	decisions     []Decision
	current       int
	state         State
}

// NewWorkflow initializes one decision per cluster from the top match's
// suggested strategy. The workflow starts in StatePending.
func NewWorkflow(result ScanResult) *Workflow {
	decisions := make([]Decision, len(result.Clusters))
	for i, c := range result.Clusters {
		strategy := StrategyMetadata
		if best, ok := c.Best(); ok && best.Similarity.MergeStrategy.Valid() {
			strategy = best.Similarity.MergeStrategy
		}
		if c.ReadOnly {
			strategy = StrategyKeepBoth
		}
		decisions[i] = Decision{Strategy: strategy}
	}
	return &Workflow{
		nonDuplicates: result.NonDuplicates,
		clusters:      result.Clusters,
		decisions:     decisions,
		state:         StatePending,
	}
}

func (w *Workflow) State() State { return w.state }

// CurrentIndex is the cluster under review.
func (w *Workflow) CurrentIndex() int { return w.current }

// Clusters returns the clusters under review.
func (w *Workflow) Clusters() []Cluster { return w.clusters }

// NonDuplicates returns the candidates that pass through untouched.
func (w *Workflow) NonDuplicates() []question.Record { return w.nonDuplicates }

// Decisions returns a copy of the decision list.
func (w *Workflow) Decisions() []Decision {
	out := make([]Decision, len(w.decisions))
	for i, d := range w.decisions {
		out[i] = d.clone()
	}
	return out
}

// Progress returns how many clusters are resolved out of the total.
func (w *Workflow) Progress() (resolved, total int) {
	for _, d := range w.decisions {
		if d.Resolved {
			resolved++
		}
	}
	return resolved, len(w.decisions)
}

// Begin moves a pending workflow into review, or straight to resolved when
// the scan found no duplicates.
func (w *Workflow) Begin() error {
	if w.state != StatePending {
		return misuse("begin", w.state)
	}
	w.current = 0
	if len(w.clusters) == 0 {
		w.state = StateResolved
		return nil
	}
	w.state = StateReviewing
	return nil
}

// Current returns the cluster under review and its decision.
func (w *Workflow) Current() (Cluster, Decision, error) {
	if w.state != StateReviewing {
		return Cluster{}, Decision{}, misuse("current", w.state)
	}
	return w.clusters[w.current], w.decisions[w.current].clone(), nil
}

// SetStrategy changes the active decision's strategy. Leaving manual drops
// any field selections.
func (w *Workflow) SetStrategy(strategy Strategy) error {
	if w.state != StateReviewing {
		return misuse("set strategy", w.state)
	}
	if !strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, string(strategy))
	}
	if err := w.checkReadOnly(w.current, strategy); err != nil {
		return err
	}
	d := w.decisions[w.current].clone()
	if strategy != StrategyManual {
		d.ManualSelections = nil
	}
	d.Strategy = strategy
	w.replaceDecision(w.current, d)
	return nil
}

// SetManualSelections records field selections for a manual decision.
func (w *Workflow) SetManualSelections(selections ManualSelections) error {
	if w.state != StateReviewing {
		return misuse("set manual selections", w.state)
	}
	d := w.decisions[w.current].clone()
	if d.Strategy != StrategyManual {
		return fmt.Errorf("%w: manual selections require the manual strategy (current %q)", ErrWorkflowMisuse, d.Strategy)
	}
	d.ManualSelections = selections.Clone()
	w.replaceDecision(w.current, d)
	return nil
}

// ResolveCurrentAndAdvance finalizes the active decision and moves to the
// next unresolved cluster. Merging is deferred to Finalize.
func (w *Workflow) ResolveCurrentAndAdvance() error {
	if w.state != StateReviewing {
		return misuse("resolve", w.state)
	}
	d := w.decisions[w.current].clone()
	d.Resolved = true
	w.replaceDecision(w.current, d)
	w.advance()
	return nil
}

// SkipCurrent keeps both records for the active cluster and advances.
func (w *Workflow) SkipCurrent() error {
	if w.state != StateReviewing {
		return misuse("skip", w.state)
	}
	if err := w.SetStrategy(StrategyKeepBoth); err != nil {
		return err
	}
	return w.ResolveCurrentAndAdvance()
}

// ApplyStrategyToAllRemaining copies the active decision to every unresolved
// cluster from the current index onward and resolves them all. Read-only
// clusters are resolved with keepBoth instead.
func (w *Workflow) ApplyStrategyToAllRemaining() error {
	if w.state != StateReviewing {
		return misuse("apply to all", w.state)
	}
	template := w.decisions[w.current].clone()
	next := make([]Decision, len(w.decisions))
	for i, d := range w.decisions {
		if i >= w.current && !d.Resolved {
			d = template.clone()
			if w.clusters[i].ReadOnly {
				d = Decision{Strategy: StrategyKeepBoth}
			}
			d.Resolved = true
		}
		next[i] = d.clone()
	}
	w.decisions = next
	w.state = StateResolved
	return nil
}

// Cancel aborts the workflow. No output may be assumed afterwards.
func (w *Workflow) Cancel() error {
	if w.state == StateCancelled {
		return misuse("cancel", w.state)
	}
	w.state = StateCancelled
	return nil
}

// Finalize assembles the batch to persist: the non-duplicates followed, per
// cluster, by the merge with its top match or, for keepBoth, the untouched
// candidate. On a merge failure the workflow state is left as is so the
// offending decision can be changed and Finalize retried.
func (w *Workflow) Finalize() ([]question.Record, error) {
	if w.state != StateResolved {
		return nil, misuse("finalize", w.state)
	}

	out := make([]question.Record, 0, len(w.nonDuplicates)+len(w.clusters))
	for _, r := range w.nonDuplicates {
		out = append(out, r.Clone())
	}
	for i, c := range w.clusters {
		d := w.decisions[i]
		if !d.Resolved {
			return nil, &MergeError{Cluster: i, Err: fmt.Errorf("%w: decision not resolved", ErrWorkflowMisuse)}
		}
		if d.Strategy == StrategyKeepBoth {
			out = append(out, c.Candidate.Clone())
			continue
		}
		if err := w.checkReadOnly(i, d.Strategy); err != nil {
			return nil, &MergeError{Cluster: i, Err: err}
		}
		best, ok := c.Best()
		if !ok {
			return nil, &MergeError{Cluster: i, Err: fmt.Errorf("%w: cluster has no match", ErrInvalidInput)}
		}
		merged, err := Merge(best.Existing, c.Candidate, d.Strategy, d.ManualSelections)
		if err != nil {
			me := &MergeError{Cluster: i, Err: err}
			var fe *fieldError
			if errors.As(err, &fe) {
				me.Field = fe.field
			}
			return nil, me
		}
		out = append(out, merged)
	}
	return out, nil
}

// Reopen moves a resolved workflow back into review at cluster index so a
// decision that failed to merge can be changed.
func (w *Workflow) Reopen(index int) error {
	if w.state != StateResolved {
		return misuse("reopen", w.state)
	}
	if index < 0 || index >= len(w.clusters) {
		return fmt.Errorf("%w: cluster index %d out of range", ErrInvalidInput, index)
	}
	d := w.decisions[index].clone()
	d.Resolved = false
	w.replaceDecision(index, d)
	w.current = index
	w.state = StateReviewing
	return nil
}

func (w *Workflow) advance() {
	n := len(w.decisions)
	for step := 1; step <= n; step++ {
		i := (w.current + step) % n
		if !w.decisions[i].Resolved {
			w.current = i
			return
		}
	}
	w.state = StateResolved
}

func (w *Workflow) replaceDecision(index int, d Decision) {
	next := make([]Decision, len(w.decisions))
	copy(next, w.decisions)
	next[index] = d
	w.decisions = next
}

func (w *Workflow) checkReadOnly(index int, strategy Strategy) error {
	if w.clusters[index].ReadOnly && strategy != StrategyKeepBoth {
		return fmt.Errorf("%w: cluster %d matches another creator's question, only %s is allowed", ErrReadOnlyCluster, index, StrategyKeepBoth)
	}
	return nil
}

func misuse(op string, state State) error {
	return fmt.Errorf("%w: cannot %s in state %s", ErrWorkflowMisuse, op, state)
}

// ResolveWithDefaults resolves every cluster with its suggested strategy, or
// with override when it is non-empty, and returns the final batch. Read-only
// clusters keep both records regardless of override.
func ResolveWithDefaults(result ScanResult, override Strategy) ([]question.Record, error) {
	w := NewWorkflow(result)
	if err := w.Begin(); err != nil {
		return nil, err
	}
	for w.State() == StateReviewing {
		if override != "" && !w.clusters[w.current].ReadOnly {
			if err := w.SetStrategy(override); err != nil {
				return nil, err
			}
		}
		if err := w.ResolveCurrentAndAdvance(); err != nil {
			return nil, err
		}
	}
	return w.Finalize()
}

// Snapshot is the serializable state of a workflow.
type Snapshot struct {
	State         State             `json:"state"`
	Current       int               `json:"current"`
	NonDuplicates []question.Record `json:"non_duplicates"`
	Clusters      []Cluster         `json:"clusters"`
	Decisions     []Decision        `json:"decisions"`
}

// Snapshot captures the workflow for storage between requests.
func (w *Workflow) Snapshot() Snapshot {
	return Snapshot{
		State:         w.state,
		Current:       w.current,
		NonDuplicates: w.nonDuplicates,
		Clusters:      w.clusters,
		Decisions:     w.Decisions(),
	}
}

// RestoreWorkflow rebuilds a workflow from a snapshot.
func RestoreWorkflow(s Snapshot) (*Workflow, error) {
	switch s.State {
	case StatePending, StateReviewing, StateResolved, StateCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown workflow state %q", ErrInvalidInput, s.State)
	}
	if len(s.Decisions) != len(s.Clusters) {
		return nil, fmt.Errorf("%w: %d decisions for %d clusters", ErrInvalidInput, len(s.Decisions), len(s.Clusters))
	}
	if s.State == StateReviewing && (s.Current < 0 || s.Current >= len(s.Clusters)) {
		return nil, fmt.Errorf("%w: current index %d out of range", ErrInvalidInput, s.Current)
	}
	w := &Workflow{
		nonDuplicates: s.NonDuplicates,
		clusters:      s.Clusters,
		decisions:     make([]Decision, len(s.Decisions)),
		current:       s.Current,
		state:         s.State,
	}
	for i, d := range s.Decisions {
		w.decisions[i] = d.clone()
	}
	return w, nil
}
