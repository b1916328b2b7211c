package voice

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/util"
)

// chain is the persistent note history of one voice.
type chain struct {
	note  model.NoteEvent
	prev  *chain
	count int
	hash  uint64

	// hint of the note that opened the voice
	hint int
}

func (c *chain) push(n model.NoteEvent) *chain {
	var buf [32]byte
	count, hint := 1, n.Voice
	if c != nil {
		binary.LittleEndian.PutUint64(buf[0:8], c.hash)
		count, hint = c.count+1, c.hint
	}
	binary.LittleEndian.PutUint64(buf[8:16], uint64(n.ID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(n.Onset))
	buf[24] = n.Pitch
	return &chain{note: n, prev: c, count: count, hash: xxhash.Sum64(buf[:]), hint: hint}
}

func (c *chain) notes() []model.NoteEvent {
	res := make([]model.NoteEvent, c.count)
	for q, i := c, c.count-1; q != nil; q, i = q.prev, i-1 {
		res[i] = q.note
	}
	return res
}

type Model struct {
	cfg Config
}

func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

func (m *Model) Initial() *State {
	s := &State{model: m}
	s.key = s.partitionKey()
	return s
}

// State is a partition of the notes seen so far into voices.
type State struct {
	model  *Model
	voices []*chain
	score  float64
	key    uint64
}

var _ joint.VoiceState = (*State)(nil)

func (s *State) Score() float64 { return s.score }
func (s *State) Started() bool { return len(s.voices) > 0 }
func (s *State) Pending() bool { return false }
func (s *State) Key() uint64 { return s.key }
func (s *State) PartitionKey() uint64 { return s.key }

func (s *State) Voices() [][]model.NoteEvent {
	res := make([][]model.NoteEvent, len(s.voices))
	for i, v := range s.voices {
		res[i] = v.notes()
	}
	return res
}

func (s *State) Close() []joint.VoiceState {
	return []joint.VoiceState{s}
}

// Duplicates holds when both partitions end every voice on the same note,
// since what follows can only depend on those notes.
func (s *State) Duplicates(other joint.VoiceState) bool {
	o, ok := other.(*State)
	if !ok || len(s.voices) != len(o.voices) {
		return false
	}
	a, b := s.lastIDs(), o.lastIDs()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (s *State) lastIDs() []int {
	ids := make([]int, len(s.voices))
	for i, v := range s.voices {
		ids[i] = v.note.ID
	}
	sort.Ints(ids)
	return ids
}

// Filter hides grace notes from the beat model.
func (s *State) Filter(b model.Batch) model.Batch {
	minDuration := s.model.cfg.MinDuration
	if minDuration == 0 {
		return b
	}
	res := make(model.Batch, 0, len(b))
	for _, n := range b {
		if n.IsClosed() && n.Duration() < minDuration {
			continue
		}
		res = append(res, n)
	}
	return res
}

func (s *State) Step(b model.Batch) []joint.VoiceState {
	if len(b) == 0 {
		return []joint.VoiceState{s}
	}
	notes := make([]model.NoteEvent, len(b))
	copy(notes, b)
	sort.Slice(notes, func(i, j int) bool {
		if notes[i].Pitch != notes[j].Pitch {
			return notes[i].Pitch > notes[j].Pitch
		}
		return notes[i].ID < notes[j].ID
	})

	partial := []*State{s}
	for _, n := range notes {
		var next []*State
		for _, p := range partial {
			next = append(next, p.assign(n)...)
		}
		partial = s.model.prune(next)
	}

	res := make([]joint.VoiceState, len(partial))
	for i, p := range partial {
		res[i] = p
	}
	return res
}

// assign returns every way of adding n to the partition.
func (s *State) assign(n model.NoteEvent) []*State {
	cfg := &s.model.cfg
	canOpen := len(s.voices) < cfg.MaxVoices

	if cfg.UseHints && n.Voice != model.NoVoice {
		for i, v := range s.voices {
			if v.hint == n.Voice {
				return []*State{s.join(i, n)}
			}
		}
		if canOpen {
			return []*State{s.open(n)}
		}
	}

	order := make([]int, len(s.voices))
	for i := range order {
		order[i] = i
	}
	distance := func(i int) int {
		return util.Abs(int(s.voices[i].note.Pitch) - int(n.Pitch))
	}
	sort.SliceStable(order, func(i, j int) bool {
		return distance(order[i]) < distance(order[j])
	})
	if len(order) > cfg.BranchFactor {
		order = order[:cfg.BranchFactor]
	}

	res := make([]*State, 0, len(order)+1)
	for _, i := range order {
		res = append(res, s.join(i, n))
	}
	if canOpen {
		res = append(res, s.open(n))
	}
	return res
}

func (s *State) join(i int, n model.NoteEvent) *State {
	cfg := &s.model.cfg
	last := s.voices[i].note

	delta := util.LogGaussian(float64(int(n.Pitch)-int(last.Pitch)), 0, cfg.PitchJumpStd)
	sounding := last.IsClosed() && last.Offset > n.Onset+cfg.GapTolerance
	if sounding || last.Onset == n.Onset {
		delta += cfg.OverlapLogProb
	}

	voices := make([]*chain, len(s.voices))
	copy(voices, s.voices)
	voices[i] = voices[i].push(n)
	return s.with(voices, delta)
}

func (s *State) open(n model.NoteEvent) *State {
	voices := make([]*chain, len(s.voices), len(s.voices)+1)
	copy(voices, s.voices)
	voices = append(voices, (*chain)(nil).push(n))
	return s.with(voices, s.model.cfg.NewVoiceLogProb)
}

func (s *State) with(voices []*chain, delta float64) *State {
	next := &State{model: s.model, voices: voices, score: s.score + delta}
	next.key = next.partitionKey()
	return next
}

// partitionKey does not depend on the order voices were opened in.
func (s *State) partitionKey() uint64 {
	hashes := make([]uint64, len(s.voices))
	for i, v := range s.voices {
		hashes[i] = v.hash
	}
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i] < hashes[j]
	})
	buf := make([]byte, 8*len(hashes))
	for i, h := range hashes {
		binary.LittleEndian.PutUint64(buf[8*i:], h)
	}
	return xxhash.Sum64(buf)
}

// prune keeps the MaxBranches best partitions.
func (m *Model) prune(states []*State) []*State {
	if m.cfg.MaxBranches == 0 || len(states) <= m.cfg.MaxBranches {
		return states
	}
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].score != states[j].score {
			return states[i].score > states[j].score
		}
		return states[i].key < states[j].key
	})
	return states[:m.cfg.MaxBranches]
}
