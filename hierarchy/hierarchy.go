package hierarchy

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
)

// Candidate is a meter the search may commit to, with its prior probability.
type Candidate struct {
	Meter model.Meter `yaml:"meter" json:"meter"`
	Prior float64     `yaml:"prior" json:"prior" validate:"gt=0,lte=1"`
}

type Config struct {
	Candidates []Candidate `yaml:"candidates" json:"candidates" validate:"required,min=1,dive"`
}

func DefaultConfig() Config {
	return Config{
		Candidates: []Candidate{
			{Meter: model.Meter{BeatsPerBar: 4, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}, Prior: 0.4},
			{Meter: model.Meter{BeatsPerBar: 3, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}, Prior: 0.25},
			{Meter: model.Meter{BeatsPerBar: 2, SubBeatsPerBeat: 3, TatumsPerSubBeat: 2}, Prior: 0.2},
			{Meter: model.Meter{BeatsPerBar: 2, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}, Prior: 0.15},
		},
	}
}

type Model struct {
	cfg    Config
	meters []model.Meter
}

func NewModel(cfg Config) *Model {
	meters := make([]model.Meter, len(cfg.Candidates))
	for i, c := range cfg.Candidates {
		meters[i] = c.Meter
	}
	return &Model{cfg: cfg, meters: meters}
}

func (m *Model) Initial() *State {
	s := &State{model: m}
	s.key = s.fingerprint()
	return s
}

func (m *Model) prior(meter model.Meter) (float64, bool) {
	for _, c := range m.cfg.Candidates {
		if c.Meter == meter {
			return c.Prior, true
		}
	}
	return 0, false
}

// State is either uncommitted, offering every candidate meter, or committed
// to the meter of the first bar the beat model placed.
type State struct {
	model     *Model
	meter     model.Meter
	committed bool
	anacrusis int
	score     float64
	key       uint64
}

var _ joint.HierarchyState = (*State)(nil)

func (s *State) Score() float64 { return s.score }
func (s *State) Started() bool { return s.committed }
func (s *State) Pending() bool { return false }
func (s *State) Key() uint64 { return s.key }

func (s *State) Meter() (model.Meter, bool) {
	return s.meter, s.committed
}

func (s *State) Meters() []model.Meter {
	if s.committed {
		return []model.Meter{s.meter}
	}
	return s.model.meters
}

func (s *State) Duplicates(other joint.HierarchyState) bool {
	o, ok := other.(*State)
	return ok && s.committed == o.committed && s.meter == o.meter
}

func (s *State) Step(_ model.Batch, beat joint.BeatState) []joint.HierarchyState {
	return s.follow(beat)
}

func (s *State) Close(beat joint.BeatState) []joint.HierarchyState {
	return s.follow(beat)
}

// follow commits to the beat state's meter once it has one. A meter that is
// not a candidate ends the branch.
func (s *State) follow(beat joint.BeatState) []joint.HierarchyState {
	meter, ok := beat.Meter()
	if !ok {
		return []joint.HierarchyState{s}
	}
	if s.committed {
		if meter != s.meter {
			return nil
		}
		return []joint.HierarchyState{s}
	}

	prior, ok := s.model.prior(meter)
	if !ok {
		return nil
	}
	next := &State{
		model:     s.model,
		meter:     meter,
		committed: true,
		anacrusis: beat.Anacrusis(),
		score:     s.score + math.Log(prior),
	}
	next.key = next.fingerprint()
	return []joint.HierarchyState{next}
}

func (s *State) fingerprint() uint64 {
	var buf [16]byte
	if s.committed {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint16(buf[1:3], uint16(s.meter.BeatsPerBar))
	binary.LittleEndian.PutUint16(buf[3:5], uint16(s.meter.SubBeatsPerBeat))
	binary.LittleEndian.PutUint16(buf[5:7], uint16(s.meter.TatumsPerSubBeat))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(s.anacrusis))
	return xxhash.Sum64(buf[:])
}

func (s *State) Describe() string {
	if !s.committed {
		names := make([]string, len(s.model.meters))
		for i, m := range s.model.meters {
			names[i] = m.String()
		}
		return "uncommitted (" + strings.Join(names, ", ") + ")"
	}
	res := fmt.Sprintf("%v: %d beats per bar, %d sub-beats per beat, %d tatums per sub-beat",
		s.meter, s.meter.BeatsPerBar, s.meter.SubBeatsPerBeat, s.meter.TatumsPerSubBeat)
	if s.anacrusis > 0 {
		res += fmt.Sprintf(", anacrusis of %d tatums", s.anacrusis)
	}
	return res
}
