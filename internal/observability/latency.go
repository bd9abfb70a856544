package observability

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Dialogue stages timed per request.
const (
	StageContextBuild        = "context_build"
	StageCharacterCompletion = "character_completion"
	StageOptionsCompletion   = "options_completion"
	StageDialogueCompletion  = "dialogue_completion"
	StageDialogueTotal       = "dialogue_total"
)

// stageBudgets is the p95 each stage should stay under. Context building
// includes one uncached reverse geocode.
var stageBudgets = map[string]time.Duration{
	StageContextBuild:        2100 * time.Millisecond,
	StageCharacterCompletion: 4 * time.Second,
	StageOptionsCompletion:   5 * time.Second,
	StageDialogueCompletion:  6 * time.Second,
	StageDialogueTotal:       8 * time.Second,
}

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	Total       uint64  `json:"total"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	BudgetP95MS float64 `json:"budget_p95_ms,omitempty"`
	OverBudget  bool    `json:"over_budget"`
}

type StageSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
}

// latencyWindow keeps the last size samples of each stage, oldest first.
type latencyWindow struct {
	mu     sync.Mutex
	size   int
	series map[string]*latencySeries
}

type latencySeries struct {
	recent []float64
	total  uint64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = 256
	}
	return &latencyWindow{size: size, series: make(map[string]*latencySeries)}
}

func (w *latencyWindow) add(stage string, d time.Duration) {
	if stage == "" || d < 0 {
		return
	}
	ms := float64(d.Microseconds()) / 1000

	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.series[stage]
	if s == nil {
		s = &latencySeries{recent: make([]float64, 0, w.size)}
		w.series[stage] = s
	}
	if len(s.recent) == w.size {
		s.recent = append(s.recent[:0], s.recent[1:]...)
	}
	s.recent = append(s.recent, ms)
	s.total++
}

// snapshot summarises the requested stages, or all of them when none are named.
// Unknown names are skipped.
func (w *latencyWindow) snapshot(only ...string) StageSnapshot {
	w.mu.Lock()
	names := slices.Clone(only)
	if len(names) == 0 {
		for name := range w.series {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)

	out := StageSnapshot{GeneratedAt: time.Now().UTC(), WindowSize: w.size, Stages: []StageStats{}}
	for _, name := range names {
		s, ok := w.series[name]
		if !ok || len(s.recent) == 0 {
			continue
		}
		out.Stages = append(out.Stages, summarize(name, slices.Clone(s.recent), s.total))
	}
	w.mu.Unlock()
	return out
}

func summarize(stage string, samples []float64, total uint64) StageStats {
	last := samples[len(samples)-1]
	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	slices.Sort(samples)

	st := StageStats{
		Stage:   stage,
		Samples: len(samples),
		Total:   total,
		LastMS:  roundMS(last),
		AvgMS:   roundMS(sum / float64(len(samples))),
		P50MS:   roundMS(nearestRank(samples, 50)),
		P95MS:   roundMS(nearestRank(samples, 95)),
		P99MS:   roundMS(nearestRank(samples, 99)),
	}
	if budget, ok := stageBudgets[stage]; ok {
		st.BudgetP95MS = float64(budget.Milliseconds())
		st.OverBudget = st.P95MS > st.BudgetP95MS
	}
	return st
}

// nearestRank returns the smallest sample with at least pct percent of the
// samples at or below it.
func nearestRank(sorted []float64, pct float64) float64 {
	rank := int(math.Ceil(pct / 100 * float64(len(sorted))))
	rank = min(max(rank, 1), len(sorted))
	return sorted[rank-1]
}

func roundMS(v float64) float64 { return math.Round(v*100) / 100 }
