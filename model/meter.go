package model

import "fmt"

type Meter struct {
	BeatsPerBar      int `yaml:"beats_per_bar" json:"beats_per_bar" validate:"gte=1"`
	SubBeatsPerBeat  int `yaml:"sub_beats_per_beat" json:"sub_beats_per_beat" validate:"gte=1"`
	TatumsPerSubBeat int `yaml:"tatums_per_sub_beat" json:"tatums_per_sub_beat" validate:"gte=1"`
}

func (m Meter) TatumsPerBar() int {
	return m.BeatsPerBar * m.SubBeatsPerBeat * m.TatumsPerSubBeat
}

// Divisions lists how each level splits its parent: bar into beats, beat into
// sub-beats, sub-beat into tatums.
func (m Meter) Divisions() []int {
	return []int{m.BeatsPerBar, m.SubBeatsPerBeat, m.TatumsPerSubBeat}
}

func (m Meter) String() string {
	return fmt.Sprintf("%d/%d/%d", m.BeatsPerBar, m.SubBeatsPerBeat, m.TatumsPerSubBeat)
}

type PulseKind uint8

const (
	TatumPulse PulseKind = iota
	SubBeatPulse
	BeatPulse
	Downbeat
)

func (k PulseKind) String() string {
	switch k {
	case TatumPulse:
		return "tatum"
	case SubBeatPulse:
		return "sub-beat"
	case BeatPulse:
		return "beat"
	case Downbeat:
		return "downbeat"
	default:
		return "unknown"
	}
}

type Tatum struct {
	Time int64     `json:"time"`
	Kind PulseKind `json:"kind"`
}
