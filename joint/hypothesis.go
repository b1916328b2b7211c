package joint

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/jsphweid/metalign/model"
)

// Hypothesis is one joint voice/beat/hierarchy explanation of the notes seen
// so far. It is never modified after creation.
type Hypothesis struct {
	voice     VoiceState
	beat      BeatState
	hierarchy HierarchyState

	score float64
	key   uint64
}

func NewHypothesis(v VoiceState, b BeatState, h HierarchyState) *Hypothesis {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:8], v.Key())
	binary.LittleEndian.PutUint64(buf[8:16], b.Key())
	binary.LittleEndian.PutUint64(buf[16:24], h.Key())
	return &Hypothesis{
		voice:     v,
		beat:      b,
		hierarchy: h,
		score:     v.Score() + b.Score() + h.Score(),
		key:       xxhash.Sum64(buf[:]),
	}
}

func (h *Hypothesis) Score() float64 { return h.score }
func (h *Hypothesis) VoiceScore() float64 { return h.voice.Score() }
func (h *Hypothesis) BeatScore() float64 { return h.beat.Score() }
func (h *Hypothesis) HierarchyScore() float64 { return h.hierarchy.Score() }
func (h *Hypothesis) Key() uint64 { return h.key }

func (h *Hypothesis) Voice() VoiceState { return h.voice }
func (h *Hypothesis) Beat() BeatState { return h.beat }
func (h *Hypothesis) Hierarchy() HierarchyState { return h.hierarchy }

// Started reports whether the beat or hierarchy state has completed a bar.
func (h *Hypothesis) Started() bool {
	return h.beat.Started() || h.hierarchy.Started()
}

func (h *Hypothesis) Pending() bool {
	return h.voice.Pending() || h.beat.Pending() || h.hierarchy.Pending()
}

// Duplicates reports whether h and other are interchangeable for the rest of
// the search. Only the better ranked one should be kept.
func (h *Hypothesis) Duplicates(other *Hypothesis) bool {
	return h.voice.Duplicates(other.voice) &&
		h.beat.Duplicates(other.beat) &&
		h.hierarchy.Duplicates(other.hierarchy)
}

func (h *Hypothesis) Voices() [][]model.NoteEvent { return h.voice.Voices() }
func (h *Hypothesis) Tatums() []model.Tatum { return h.beat.Tatums() }
func (h *Hypothesis) Describe() string { return h.hierarchy.Describe() }

func (h *Hypothesis) Meter() (model.Meter, bool) {
	if m, ok := h.hierarchy.Meter(); ok {
		return m, true
	}
	return h.beat.Meter()
}

// Rank is the eviction order: higher score first, then lower key. It is a
// strict total order over distinct hypotheses.
func Rank(a, b *Hypothesis) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.key < b.key
}
