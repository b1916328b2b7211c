package joint

import "time"

// StepStats describes one Step or Close round.
type StepStats struct {
	Kind      string // "step" or "close"
	Index     int
	Parents   int
	Skipped   int
	Children  int
	Kept      int
	Started   int
	Collapsed int
	Evicted   int
	MemoHits  int64
	BestScore float64
	Duration  time.Duration
}

type Observer interface {
	ObserveStep(stats StepStats)
}

type nopObserver struct{}

func (nopObserver) ObserveStep(StepStats) {}
