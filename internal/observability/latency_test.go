package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyWindowSummary(t *testing.T) {
	w := newLatencyWindow(8)
	for _, ms := range []int{900, 500, 700} {
		w.add(StageCharacterCompletion, time.Duration(ms)*time.Millisecond)
	}

	snap := w.snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)
	s := snap.Stages[0]
	assert.Equal(t, StageCharacterCompletion, s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.EqualValues(t, 3, s.Total)
	assert.Equal(t, 700.0, s.LastMS)
	assert.Equal(t, 700.0, s.AvgMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Equal(t, 900.0, s.P95MS)
	assert.Equal(t, 4000.0, s.BudgetP95MS)
	assert.False(t, s.OverBudget)
}

func TestLatencyWindowKeepsNewestSamples(t *testing.T) {
	w := newLatencyWindow(2)
	for _, ms := range []int{100, 200, 300} {
		w.add(StageDialogueTotal, time.Duration(ms)*time.Millisecond)
	}

	s := w.snapshot().Stages[0]
	assert.Equal(t, 2, s.Samples)
	assert.EqualValues(t, 3, s.Total)
	assert.Equal(t, 250.0, s.AvgMS)
	assert.Equal(t, 300.0, s.LastMS)
}

func TestLatencyWindowFlagsBudgetOverrun(t *testing.T) {
	w := newLatencyWindow(4)
	w.add(StageContextBuild, 3*time.Second)

	s := w.snapshot().Stages[0]
	assert.True(t, s.OverBudget)
	assert.Equal(t, 2100.0, s.BudgetP95MS)
}

func TestLatencyWindowFiltersStages(t *testing.T) {
	w := newLatencyWindow(4)
	w.add(StageContextBuild, time.Millisecond)
	w.add(StageDialogueTotal, time.Millisecond)
	w.add("custom", time.Millisecond)

	snap := w.snapshot(StageDialogueTotal, "missing", StageDialogueTotal)
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, StageDialogueTotal, snap.Stages[0].Stage)

	all := w.snapshot()
	require.Len(t, all.Stages, 3)
	assert.Equal(t, "custom", all.Stages[0].Stage)
	assert.Zero(t, all.Stages[0].BudgetP95MS)
}

func TestLatencyWindowIgnoresInvalidSamples(t *testing.T) {
	w := newLatencyWindow(4)
	w.add("", time.Millisecond)
	w.add(StageContextBuild, -time.Millisecond)
	assert.Empty(t, w.snapshot().Stages)
}
