package joint

import "github.com/jsphweid/metalign/model"

// SubState is what every sub-model state reports to the search.
//
// Implementations must be immutable pointer types: states are shared between
// hypotheses and used as memo keys, so successors are always new values that
// reference (not copy) their predecessor's history.
type SubState interface {
	// Score is the accumulated log-probability of this state.
	Score() float64

	// Started reports whether a first structural unit has been completed.
	Started() bool

	// Pending reports whether the state still holds data it has not placed.
	// Close is repeated until no state is pending.
	Pending() bool

	// Key is a content fingerprint, stable across runs.
	Key() uint64
}

type VoiceState interface {
	SubState

	Step(b model.Batch) []VoiceState
	Close() []VoiceState

	// Duplicates is the approximate equivalence used for collapsing.
	Duplicates(other VoiceState) bool

	// Filter returns the part of b the beat and hierarchy models should see.
	Filter(b model.Batch) model.Batch

	// PartitionKey identifies the voice partition; hypotheses sharing it form
	// one class for the secondary beam cap.
	PartitionKey() uint64

	Voices() [][]model.NoteEvent
}

type BeatState interface {
	SubState

	// Step consumes a batch. meters are the candidates offered by the
	// hierarchy state; a state that already committed to a meter ignores them.
	Step(b model.Batch, meters []model.Meter) []BeatState
	Close(meters []model.Meter) []BeatState

	Duplicates(other BeatState) bool

	Meter() (model.Meter, bool)
	Tatums() []model.Tatum
	Bars() int

	// Anacrusis is the number of tatums placed before the first downbeat.
	Anacrusis() int
}

type HierarchyState interface {
	SubState

	Step(b model.Batch, beat BeatState) []HierarchyState
	Close(beat BeatState) []HierarchyState

	Duplicates(other HierarchyState) bool

	// Meters returns the committed meter, or every candidate if none yet.
	Meters() []model.Meter
	Meter() (model.Meter, bool)
	Describe() string
}
