package beat

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
)

type Phase uint8

const (
	// Empty states have not placed a pulse yet.
	Empty Phase = iota
	Tracking
	Closed
)

func (p Phase) String() string {
	switch p {
	case Empty:
		return "empty"
	case Tracking:
		return "tracking"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is one hypothesis about the pulses placed so far. States are never
// modified; successors share the pulse chain of their parent.
type State struct {
	model *Model
	phase Phase

	meter    model.Meter
	hasMeter bool

	pulses    *pulse
	tempo     float64 // mean beat length of the last bar
	bars      int
	anacrusis int

	// unplaced notes, sorted by onset
	unplaced []model.NoteEvent
	latest   int64

	score float64
	key   uint64
}

var _ joint.BeatState = (*State)(nil)

func (s *State) Score() float64 { return s.score }
func (s *State) Started() bool { return s.bars > 0 }
func (s *State) Key() uint64 { return s.key }
func (s *State) Phase() Phase { return s.phase }
func (s *State) Tempo() float64 { return s.tempo }
func (s *State) Bars() int { return s.bars }
func (s *State) Anacrusis() int { return s.anacrusis }
func (s *State) Unplaced() int { return len(s.unplaced) }

func (s *State) Pending() bool {
	return s.phase != Closed && len(s.unplaced) > 0
}

func (s *State) Meter() (model.Meter, bool) {
	return s.meter, s.hasMeter
}

func (s *State) Tatums() []model.Tatum {
	return s.pulses.tatums()
}

// Duplicates treats two states as equivalent when they agree on phase and
// meter and their tempo and last pulse are within tolerance.
func (s *State) Duplicates(other joint.BeatState) bool {
	o, ok := other.(*State)
	if !ok {
		return false
	}
	if s.phase != o.phase || s.hasMeter != o.hasMeter || s.meter != o.meter {
		return false
	}
	if s.pulses == nil || o.pulses == nil {
		return s.pulses == o.pulses && s.firstOnset() == o.firstOnset() && len(s.unplaced) == len(o.unplaced)
	}

	cfg := &s.model.cfg
	diff := math.Abs(s.tempo-o.tempo) / math.Max(s.tempo, o.tempo)
	if diff > cfg.TempoTolerance {
		return false
	}
	gap := s.pulses.time - o.pulses.time
	return gap <= cfg.PulseTolerance && -gap <= cfg.PulseTolerance
}

func (s *State) Step(b model.Batch, meters []model.Meter) []joint.BeatState {
	if s.phase == Closed || len(b) == 0 {
		return []joint.BeatState{s}
	}
	next := s.withNotes(b)
	if next.phase == Empty {
		return states(next.fromEmpty(meters, false))
	}
	return states(next.track())
}

// Close finishes at most one more bar per call. States left with unplaced
// notes stay pending and are closed again.
func (s *State) Close(meters []model.Meter) []joint.BeatState {
	switch s.phase {
	case Closed:
		return []joint.BeatState{s}
	case Empty:
		if len(s.unplaced) == 0 {
			return []joint.BeatState{s.closed()}
		}
		placed := s.fromEmpty(meters, true)
		if len(placed) == 0 {
			return []joint.BeatState{s.closed()}
		}
		return states(placed)
	}

	if len(s.unplaced) == 0 {
		return []joint.BeatState{s.closed()}
	}
	kids := s.addBar()
	if len(kids) == 0 {
		return []joint.BeatState{s.closeOut()}
	}
	for i, k := range kids {
		if len(k.unplaced) == 0 {
			kids[i] = k.closed()
		}
	}
	return states(kids)
}

func states(list []*State) []joint.BeatState {
	res := make([]joint.BeatState, len(list))
	for i, s := range list {
		res[i] = s
	}
	return res
}

func (s *State) derive() *State {
	next := *s
	return &next
}

func (s *State) finish() *State {
	s.key = s.fingerprint()
	return s
}

func (s *State) fingerprint() uint64 {
	var buf [48]byte
	buf[0] = byte(s.phase)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(s.meter.BeatsPerBar))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(s.meter.SubBeatsPerBeat))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(s.meter.TatumsPerSubBeat))
	if s.pulses != nil {
		binary.LittleEndian.PutUint64(buf[8:16], s.pulses.hash)
	}
	binary.LittleEndian.PutUint64(buf[16:24], uint64(len(s.unplaced)))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(s.anacrusis))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(s.firstOnset()))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(s.latest))
	return xxhash.Sum64(buf[:])
}

func (s *State) firstOnset() int64 {
	if len(s.unplaced) == 0 {
		return -1
	}
	return s.unplaced[0].Onset
}

func (s *State) withNotes(b model.Batch) *State {
	next := s.derive()
	next.unplaced = make([]model.NoteEvent, 0, len(s.unplaced)+len(b))
	next.unplaced = append(next.unplaced, s.unplaced...)
	next.unplaced = append(next.unplaced, b...)
	sort.SliceStable(next.unplaced, func(i, j int) bool {
		return next.unplaced[i].Onset < next.unplaced[j].Onset
	})
	next.latest = max(s.latest, b[0].Onset)
	if next.phase == Empty {
		next.score = s.model.cfg.EmptyNoteFloor * float64(len(next.unplaced))
	}
	return next.finish()
}

func (s *State) closed() *State {
	next := s.derive()
	next.phase = Closed
	return next.finish()
}

// closeOut places every remaining note against the last pulse.
func (s *State) closeOut() *State {
	next := s.derive()
	next.phase = Closed
	if s.pulses != nil {
		dev, _ := s.model.place(s.unplaced, []int64{s.pulses.time}, math.MaxInt64)
		next.score += dev
		next.unplaced = nil
	}
	return next.finish()
}

func (s *State) distinctOnsets() []int64 {
	var res []int64
	for _, n := range s.unplaced {
		if len(res) == 0 || res[len(res)-1] != n.Onset {
			res = append(res, n.Onset)
		}
	}
	return res
}

// fromEmpty decides what an empty state becomes once it has seen notes. A
// span too short for any meter keeps waiting; a span too long for a meter
// rules that meter out; otherwise the first bar is placed. While stepping,
// only the newest onset can end the first bar and the state also keeps
// waiting so later onsets get their turn.
func (s *State) fromEmpty(meters []model.Meter, closing bool) []*State {
	cfg := &s.model.cfg
	span := s.latest - s.firstOnset()

	var res []*State
	wait := false
	for _, meter := range meters {
		bpb := int64(meter.BeatsPerBar)
		minBar, maxBar := cfg.MinBeatLength*bpb, cfg.MaxBeatLength*bpb
		if span < maxBar {
			wait = true
		}
		if span < minBar {
			continue
		}
		res = append(res, s.placeInitial(meter, minBar, maxBar, closing)...)
	}

	if wait && !closing {
		res = append(res, s)
	}
	return res
}

func (s *State) placeInitial(meter model.Meter, minBar, maxBar int64, closing bool) []*State {
	cfg := &s.model.cfg
	onsets := s.distinctOnsets()
	first := onsets[0]

	ends := []int64{s.latest}
	if closing {
		ends = onsets
	}

	var res []*State
	for _, start := range onsets {
		if start-first > cfg.MaxAnacrusis {
			break
		}
		for _, end := range ends {
			if end-start < minBar || end-start > maxBar {
				continue
			}
			res = append(res, s.initialBar(meter, first, start, end)...)
		}
	}
	return res
}

// pickup back-fills pulses before start at the first bar's tatum spacing so
// notes before the first downbeat have somewhere to go. ok is false when the
// pickup would be a whole bar or more.
func pickup(meter model.Meter, first, start int64, tatum float64) ([]mark, bool) {
	if start == first {
		return nil, true
	}
	k := int(math.Round(float64(start-first) / tatum))
	if k < 1 {
		k = 1
	}
	tpb := meter.TatumsPerBar()
	if k >= tpb {
		return nil, false
	}
	marks := make([]mark, k)
	for j := 1; j <= k; j++ {
		marks[k-j] = mark{
			time: start - int64(math.Round(float64(j)*tatum)),
			kind: patternKind(meter, tpb-j),
		}
	}
	return marks, true
}

// patternKind is the kind of the tatum at index i of a bar.
func patternKind(meter model.Meter, i int) model.PulseKind {
	perBeat := meter.SubBeatsPerBeat * meter.TatumsPerSubBeat
	switch {
	case i == 0:
		return model.Downbeat
	case i%perBeat == 0:
		return model.BeatPulse
	case i%meter.TatumsPerSubBeat == 0:
		return model.SubBeatPulse
	default:
		return model.TatumPulse
	}
}

func (s *State) initialBar(meter model.Meter, first, start, end int64) []*State {
	m := s.model
	tatum := float64(end-start) / float64(meter.TatumsPerBar())
	if tatum < 1 {
		return nil
	}
	pick, ok := pickup(meter, first, start, tatum)
	if !ok {
		return nil
	}
	before := make([]int64, len(pick))
	for i, p := range pick {
		before[i] = p.time
	}

	g := newGenerator(&m.cfg, s.unplaced, meter)
	var res []*State
	for _, alt := range g.divide(start, end, 0) {
		score, rest := m.scoreBar(meter, 0, start, end, alt.marks, before, s.unplaced)

		var chain *pulse
		for _, p := range pick {
			chain = chain.push(p.time, p.kind)
		}
		chain = chain.push(start, model.Downbeat)
		for _, mk := range alt.marks {
			chain = chain.push(mk.time, mk.kind)
		}
		chain = chain.push(end, model.Downbeat)

		next := s.derive()
		next.phase = Tracking
		next.meter = meter
		next.hasMeter = true
		next.pulses = chain
		next.tempo = float64(end-start) / float64(meter.BeatsPerBar)
		next.bars = 1
		next.anacrusis = len(pick)
		next.unplaced = rest
		next.score = score.total()
		res = append(res, next.finish())
	}
	return res
}

// track adds bars for as long as enough notes have arrived past the
// estimated next boundary.
func (s *State) track() []*State {
	var res []*State
	work := []*State{s}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if !cur.readyForBar() {
			res = append(res, cur)
			continue
		}
		work = append(work, cur.addBar()...)
	}
	return res
}

// readyForBar reports whether the newest unplaced note lies at least one bar
// past the estimated next boundary.
func (s *State) readyForBar() bool {
	if len(s.unplaced) == 0 {
		return false
	}
	barLen := s.tempo * float64(s.meter.BeatsPerBar)
	estimate := float64(s.pulses.time) + barLen
	return float64(s.unplaced[len(s.unplaced)-1].Onset) >= estimate+barLen
}

func (s *State) addBar() []*State {
	m := s.model
	cfg := &m.cfg
	bpb := float64(s.meter.BeatsPerBar)
	start := s.pulses.time

	g := newGenerator(cfg, s.unplaced, s.meter)
	var res []*State
	for _, end := range g.barEnds(start, s.tempo*bpb) {
		beatLen := float64(end-start) / bpb
		if beatLen < float64(cfg.MinBeatLength) || beatLen > float64(cfg.MaxBeatLength) {
			continue
		}
		for _, alt := range g.divide(start, end, 0) {
			score, rest := m.scoreBar(s.meter, s.tempo, start, end, alt.marks, nil, s.unplaced)

			chain := s.pulses
			for _, mk := range alt.marks {
				chain = chain.push(mk.time, mk.kind)
			}
			chain = chain.push(end, model.Downbeat)

			next := s.derive()
			next.pulses = chain
			next.tempo = beatLen
			next.bars = s.bars + 1
			next.unplaced = rest
			next.score = s.score + score.total()
			res = append(res, next.finish())
		}
	}
	return res
}
