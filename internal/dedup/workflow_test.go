package dedup

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pritecards/internal/question"
)

func clusterFor(candidate, existing question.Record, suggested Strategy) Cluster {
	return Cluster{
		Candidate:   candidate,
		IsDuplicate: true,
		Matches: []Match{{
			Existing:   existing,
			Similarity: SimilarityResult{Score: 0.9, MatchCount: 3, MergeStrategy: suggested},
		}},
	}
}

func workflowFixture() ScanResult {
	existing, candidate := mergeFixtures()
	second := candidate.Clone()
	second.ID = ""
	second.Text = "Second imported stem"
	third := candidate.Clone()
	third.ID = ""
	third.Text = "Third imported stem"

	return ScanResult{
		NonDuplicates: []question.Record{{Text: "Unrelated new question", Part: "1"}},
		Clusters: []Cluster{
			clusterFor(candidate, existing, StrategyNewer),
			clusterFor(second, existing, StrategyMetadata),
			clusterFor(third, existing, StrategyMetadata),
		},
	}
}

func TestWorkflowDefaultsToSuggestedStrategy(t *testing.T) {
	w := NewWorkflow(workflowFixture())
	assert.Equal(t, StatePending, w.State())

	d := w.Decisions()
	require.Len(t, d, 3)
	assert.Equal(t, StrategyNewer, d[0].Strategy)
	assert.Equal(t, StrategyMetadata, d[1].Strategy)
	for _, dec := range d {
		assert.False(t, dec.Resolved)
	}
}

func TestWorkflowResolveEachCluster(t *testing.T) {
	res := workflowFixture()
	w := NewWorkflow(res)
	require.NoError(t, w.Begin())
	assert.Equal(t, StateReviewing, w.State())

	require.NoError(t, w.ResolveCurrentAndAdvance())
	assert.Equal(t, 1, w.CurrentIndex())

	require.NoError(t, w.SetStrategy(StrategyManual))
	require.NoError(t, w.SetManualSelections(ManualSelections{FieldText: true}))
	require.NoError(t, w.ResolveCurrentAndAdvance())

	require.NoError(t, w.SkipCurrent())
	assert.Equal(t, StateResolved, w.State())

	resolved, total := w.Progress()
	assert.Equal(t, 3, resolved)
	assert.Equal(t, 3, total)

	batch, err := w.Finalize()
	require.NoError(t, err)
	require.Len(t, batch, 4)

	existing := res.Clusters[0].Matches[0].Existing
	assert.Equal(t, res.NonDuplicates[0], batch[0])
	assert.Equal(t, existing.ID, batch[1].ID)
	assert.Equal(t, res.Clusters[0].Candidate.Text, batch[1].Text)
	assert.Equal(t, existing.ID, batch[2].ID)
	assert.Equal(t, "Second imported stem", batch[2].Text)
	assert.Equal(t, existing.Options, batch[2].Options)
	assert.Equal(t, res.Clusters[2].Candidate, batch[3], "keepBoth passes the candidate through untouched")
	assert.Empty(t, batch[3].ID)
}

func TestWorkflowApplyToAllRemaining(t *testing.T) {
	res := workflowFixture()
	w := NewWorkflow(res)
	require.NoError(t, w.Begin())

	require.NoError(t, w.SetStrategy(StrategyMetadata))
	require.NoError(t, w.ResolveCurrentAndAdvance())
	require.NoError(t, w.SetStrategy(StrategyKeepBoth))
	require.NoError(t, w.ApplyStrategyToAllRemaining())
	assert.Equal(t, StateResolved, w.State())

	d := w.Decisions()
	assert.Equal(t, StrategyMetadata, d[0].Strategy)
	assert.Equal(t, StrategyKeepBoth, d[1].Strategy)
	assert.Equal(t, StrategyKeepBoth, d[2].Strategy)

	batch, err := w.Finalize()
	require.NoError(t, err)
	require.Len(t, batch, 4)
	assert.Equal(t, res.Clusters[1].Candidate, batch[2])
	assert.Equal(t, res.Clusters[2].Candidate, batch[3])
}

func TestWorkflowApplyManualSelectionsToAll(t *testing.T) {
	w := NewWorkflow(workflowFixture())
	require.NoError(t, w.Begin())
	require.NoError(t, w.SetStrategy(StrategyManual))
	require.NoError(t, w.SetManualSelections(ManualSelections{FieldYear: true}))
	require.NoError(t, w.ApplyStrategyToAllRemaining())

	for _, d := range w.Decisions() {
		assert.Equal(t, StrategyManual, d.Strategy)
		assert.Equal(t, ManualSelections{FieldYear: true}, d.ManualSelections)
	}

	batch, err := w.Finalize()
	require.NoError(t, err)
	for _, r := range batch[1:] {
		assert.Equal(t, "2024", r.Year)
	}
}

func TestWorkflowLeavingManualClearsSelections(t *testing.T) {
	w := NewWorkflow(workflowFixture())
	require.NoError(t, w.Begin())
	require.NoError(t, w.SetStrategy(StrategyManual))
	require.NoError(t, w.SetManualSelections(ManualSelections{FieldText: true}))
	require.NoError(t, w.SetStrategy(StrategyNewer))

	_, d, err := w.Current()
	require.NoError(t, err)
	assert.Nil(t, d.ManualSelections)
}

func TestWorkflowMisuse(t *testing.T) {
	w := NewWorkflow(workflowFixture())

	assert.True(t, errors.Is(w.ResolveCurrentAndAdvance(), ErrWorkflowMisuse), "resolve before begin")
	_, err := w.Finalize()
	assert.True(t, errors.Is(err, ErrWorkflowMisuse), "finalize before begin")

	require.NoError(t, w.Begin())
	assert.True(t, errors.Is(w.Begin(), ErrWorkflowMisuse))
	assert.True(t, errors.Is(w.SetManualSelections(ManualSelections{FieldText: true}), ErrWorkflowMisuse),
		"selections need the manual strategy")
	assert.True(t, errors.Is(w.SetStrategy("overwrite"), ErrInvalidStrategy))

	require.NoError(t, w.ApplyStrategyToAllRemaining())
	assert.True(t, errors.Is(w.ResolveCurrentAndAdvance(), ErrWorkflowMisuse), "resolve after all resolved")
	assert.True(t, errors.Is(w.SkipCurrent(), ErrWorkflowMisuse))

	require.NoError(t, w.Cancel())
	assert.Equal(t, StateCancelled, w.State())
	_, err = w.Finalize()
	assert.True(t, errors.Is(err, ErrWorkflowMisuse), "finalize after cancel")
	assert.True(t, errors.Is(w.Cancel(), ErrWorkflowMisuse))
}

func TestWorkflowWithoutClusters(t *testing.T) {
	res := ScanResult{NonDuplicates: []question.Record{{Text: "a"}, {Text: "b"}}}
	w := NewWorkflow(res)
	require.NoError(t, w.Begin())
	assert.Equal(t, StateResolved, w.State())

	batch, err := w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, res.NonDuplicates, batch)
}

func TestWorkflowFinalizeFailureKeepsDecisions(t *testing.T) {
	res := workflowFixture()
	w := NewWorkflow(res)
	require.NoError(t, w.Begin())
	require.NoError(t, w.ResolveCurrentAndAdvance())
	require.NoError(t, w.SetStrategy(StrategyManual))
	require.NoError(t, w.SetManualSelections(ManualSelections{OptionField("E"): true}))
	require.NoError(t, w.ApplyStrategyToAllRemaining())

	_, err := w.Finalize()
	require.Error(t, err)
	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 1, me.Cluster)
	assert.Equal(t, "optionE", me.Field)
	assert.True(t, errors.Is(err, ErrInconsistentSelection))

	assert.Equal(t, StateResolved, w.State())
	before := w.Decisions()
	assert.True(t, before[0].Resolved)
	assert.Equal(t, StrategyNewer, before[0].Strategy)

	require.NoError(t, w.Reopen(me.Cluster))
	require.NoError(t, w.SetManualSelections(ManualSelections{OptionField("C"): true}))
	require.NoError(t, w.ResolveCurrentAndAdvance())
	_, err = w.Finalize()
	require.Error(t, err, "cluster 2 still selects a missing option")
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 2, me.Cluster)

	require.NoError(t, w.Reopen(2))
	require.NoError(t, w.SetStrategy(StrategyMetadata))
	require.NoError(t, w.ResolveCurrentAndAdvance())
	batch, err := w.Finalize()
	require.NoError(t, err)
	assert.Len(t, batch, 4)
}

func TestWorkflowDecisionsAreCopies(t *testing.T) {
	w := NewWorkflow(workflowFixture())
	require.NoError(t, w.Begin())
	require.NoError(t, w.SetStrategy(StrategyManual))
	require.NoError(t, w.SetManualSelections(ManualSelections{FieldText: true}))

	d := w.Decisions()
	d[0].ManualSelections[FieldYear] = true
	d[1].Strategy = StrategyKeepBoth

	again := w.Decisions()
	assert.Equal(t, ManualSelections{FieldText: true}, again[0].ManualSelections)
	assert.Equal(t, StrategyMetadata, again[1].Strategy)
}

func TestWorkflowSnapshotRoundTrip(t *testing.T) {
	w := NewWorkflow(workflowFixture())
	require.NoError(t, w.Begin())
	require.NoError(t, w.SkipCurrent())

	raw, err := json.Marshal(w.Snapshot())
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	restored, err := RestoreWorkflow(snap)
	require.NoError(t, err)

	assert.Equal(t, StateReviewing, restored.State())
	assert.Equal(t, 1, restored.CurrentIndex())
	assert.Equal(t, w.Decisions(), restored.Decisions())

	require.NoError(t, restored.ApplyStrategyToAllRemaining())
	batch, err := restored.Finalize()
	require.NoError(t, err)
	assert.Len(t, batch, 4)
}

func TestRestoreWorkflowValidates(t *testing.T) {
	_, err := RestoreWorkflow(Snapshot{State: "paused"})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	snap := NewWorkflow(workflowFixture()).Snapshot()
	snap.Decisions = snap.Decisions[:1]
	_, err = RestoreWorkflow(snap)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestRestoredUnknownStrategyFailsFinalize(t *testing.T) {
	snap := NewWorkflow(workflowFixture()).Snapshot()
	snap.State = StateResolved
	for i := range snap.Decisions {
		snap.Decisions[i].Resolved = true
	}
	snap.Decisions[0].Strategy = "overwrite"

	w, err := RestoreWorkflow(snap)
	require.NoError(t, err)
	_, err = w.Finalize()
	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 0, me.Cluster)
	assert.True(t, errors.Is(err, ErrInvalidStrategy))
}

func TestResolveWithDefaults(t *testing.T) {
	res := workflowFixture()

	batch, err := ResolveWithDefaults(res, "")
	require.NoError(t, err)
	require.Len(t, batch, 4)
	assert.Equal(t, res.Clusters[0].Candidate.Text, batch[1].Text, "first cluster suggested newer")
	assert.Equal(t, res.Clusters[1].Matches[0].Existing.Text, batch[2].Text)

	batch, err = ResolveWithDefaults(res, StrategyKeepBoth)
	require.NoError(t, err)
	assert.Equal(t, res.Clusters[2].Candidate, batch[3])

	_, err = ResolveWithDefaults(res, "bogus")
	assert.True(t, errors.Is(err, ErrInvalidStrategy))
}

func TestWorkflowReadOnlyClusterKeepsBoth(t *testing.T) {
	res := workflowFixture()
	res.Clusters[0].ReadOnly = true
	w := NewWorkflow(res)
	assert.Equal(t, StrategyKeepBoth, w.Decisions()[0].Strategy)
	require.NoError(t, w.Begin())

	for _, s := range []Strategy{StrategyNewer, StrategyMetadata, StrategyManual} {
		err := w.SetStrategy(s)
		assert.True(t, errors.Is(err, ErrInvalidStrategy), "strategy %s", s)
	}
	require.NoError(t, w.ResolveCurrentAndAdvance())

	// A newer decision on the second cluster must not spill onto the first.
	require.NoError(t, w.SetStrategy(StrategyNewer))
	require.NoError(t, w.ApplyStrategyToAllRemaining())

	batch, err := w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, res.Clusters[0].Candidate, batch[1])
	assert.Equal(t, res.Clusters[1].Matches[0].Existing.ID, batch[2].ID)
}

func TestWorkflowReadOnlyApplyToAllFromForeignCluster(t *testing.T) {
	res := workflowFixture()
	res.Clusters[1].ReadOnly = true
	w := NewWorkflow(res)
	require.NoError(t, w.Begin())

	require.NoError(t, w.SetStrategy(StrategyMetadata))
	require.NoError(t, w.ApplyStrategyToAllRemaining())

	d := w.Decisions()
	assert.Equal(t, StrategyMetadata, d[0].Strategy)
	assert.Equal(t, StrategyKeepBoth, d[1].Strategy)
	assert.Equal(t, StrategyMetadata, d[2].Strategy)
}

func TestRestoredReadOnlyMergeFailsFinalize(t *testing.T) {
	res := workflowFixture()
	res.Clusters[0].ReadOnly = true
	snap := NewWorkflow(res).Snapshot()
	snap.State = StateResolved
	for i := range snap.Decisions {
		snap.Decisions[i] = Decision{Strategy: StrategyNewer, Resolved: true}
	}

	w, err := RestoreWorkflow(snap)
	require.NoError(t, err)
	_, err = w.Finalize()
	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, 0, me.Cluster)
	assert.True(t, errors.Is(err, ErrInvalidStrategy))
}

func TestResolveWithDefaultsLeavesReadOnlyClusters(t *testing.T) {
	res := workflowFixture()
	res.Clusters[2].ReadOnly = true

	batch, err := ResolveWithDefaults(res, StrategyNewer)
	require.NoError(t, err)
	assert.Equal(t, res.Clusters[2].Candidate, batch[3])
}
