package joint

import "github.com/jsphweid/metalign/model"

type fakeVoice struct {
	part  uint64
	score float64
}

func (v *fakeVoice) Score() float64 { return v.score }
func (v *fakeVoice) Started() bool { return false }
func (v *fakeVoice) Pending() bool { return false }
func (v *fakeVoice) Key() uint64 { return v.part }
func (v *fakeVoice) PartitionKey() uint64 { return v.part }
func (v *fakeVoice) Step(model.Batch) []VoiceState { return []VoiceState{v} }
func (v *fakeVoice) Close() []VoiceState { return []VoiceState{v} }
func (v *fakeVoice) Filter(b model.Batch) model.Batch { return b }
func (v *fakeVoice) Voices() [][]model.NoteEvent { return nil }

func (v *fakeVoice) Duplicates(other VoiceState) bool {
	o, ok := other.(*fakeVoice)
	return ok && o.part == v.part
}

// fakeBeat branches into one child per entry of deltas on every step, or
// into kids when set. Two fake beats with the same non-zero group are
// duplicates. Two near fake beats are duplicates when their positions differ
// by at most one, which like a real tempo tolerance is not transitive.
type fakeBeat struct {
	id      uint64
	score   float64
	started bool
	group   int
	near    bool
	pos     int
	pending int
	deltas  []float64
	kids    []*fakeBeat
}

func (b *fakeBeat) Score() float64 { return b.score }
func (b *fakeBeat) Started() bool { return b.started }
func (b *fakeBeat) Pending() bool { return b.pending > 0 }
func (b *fakeBeat) Key() uint64 { return b.id }
func (b *fakeBeat) Meter() (model.Meter, bool) { return model.Meter{}, false }
func (b *fakeBeat) Tatums() []model.Tatum { return nil }
func (b *fakeBeat) Anacrusis() int { return 0 }

func (b *fakeBeat) Bars() int {
	if b.started {
		return 1
	}
	return 0
}

func (b *fakeBeat) Duplicates(other BeatState) bool {
	o, ok := other.(*fakeBeat)
	if !ok {
		return false
	}
	if b.near && o.near {
		return b.pos-o.pos <= 1 && o.pos-b.pos <= 1
	}
	return b.group != 0 && o.group == b.group
}

func (b *fakeBeat) Step(model.Batch, []model.Meter) []BeatState {
	if b.kids != nil {
		res := make([]BeatState, len(b.kids))
		for i, k := range b.kids {
			res[i] = k
		}
		return res
	}
	if b.deltas == nil {
		return []BeatState{b}
	}
	res := make([]BeatState, len(b.deltas))
	for i, d := range b.deltas {
		res[i] = &fakeBeat{
			id:      b.id*16 + uint64(i) + 1,
			score:   b.score + d,
			started: true,
			near:    b.near,
			pos:     b.pos + i,
			deltas:  b.deltas,
		}
	}
	return res
}

func (b *fakeBeat) Close([]model.Meter) []BeatState {
	if b.pending == 0 {
		return []BeatState{b}
	}
	next := *b
	next.pending--
	next.score--
	next.id++
	return []BeatState{&next}
}

type fakeHierarchy struct{}

func (h *fakeHierarchy) Score() float64 { return 0 }
func (h *fakeHierarchy) Started() bool { return false }
func (h *fakeHierarchy) Pending() bool { return false }
func (h *fakeHierarchy) Key() uint64 { return 0 }
func (h *fakeHierarchy) Duplicates(HierarchyState) bool { return true }
func (h *fakeHierarchy) Meters() []model.Meter { return nil }
func (h *fakeHierarchy) Meter() (model.Meter, bool) { return model.Meter{}, false }
func (h *fakeHierarchy) Describe() string { return "" }

func (h *fakeHierarchy) Step(model.Batch, BeatState) []HierarchyState {
	return []HierarchyState{h}
}

func (h *fakeHierarchy) Close(BeatState) []HierarchyState {
	return []HierarchyState{h}
}

var noHierarchy = &fakeHierarchy{}

func hyp(part uint64, id uint64, score float64, started bool) *Hypothesis {
	return NewHypothesis(&fakeVoice{part: part}, &fakeBeat{id: id, score: score, started: started}, noHierarchy)
}

func dupHyp(group int, id uint64, score float64) *Hypothesis {
	return NewHypothesis(&fakeVoice{part: 1}, &fakeBeat{id: id, score: score, started: true, group: group}, noHierarchy)
}

func nearHyp(pos int, id uint64, score float64) *Hypothesis {
	return NewHypothesis(&fakeVoice{part: 1}, &fakeBeat{id: id, score: score, started: true, near: true, pos: pos}, noHierarchy)
}

func scores(list []*Hypothesis) []float64 {
	res := make([]float64, len(list))
	for i, h := range list {
		res[i] = h.Score()
	}
	return res
}
