package beat

import (
	"math"
	"sort"

	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/util"
)

// barScore is the breakdown of the log-probability added by one bar.
type barScore struct {
	tempo     float64
	evenness  [3]float64
	downbeat  float64
	deviation float64
}

func (s barScore) total() float64 {
	return s.tempo + s.evenness[0] + s.evenness[1] + s.evenness[2] + s.downbeat + s.deviation
}

// spacingStd is the expected coefficient of variation at each level.
func (c *Config) spacingStd(level int) float64 {
	switch level {
	case 0:
		return c.BeatSpacingStd
	case 1:
		return c.SubBeatSpacingStd
	default:
		return c.TatumSpacingStd
	}
}

// tempoScore compares the mean beat length of a bar with the previous tempo.
// The first bar has no previous tempo and scores 0.
func (m *Model) tempoScore(prev, beatLen float64) float64 {
	if prev <= 0 {
		return 0
	}
	change := (beatLen - prev) / prev
	return util.LogGaussian(change, m.cfg.TempoChangeMean, m.cfg.TempoChangeStd)
}

// evenness scores the spacing of one level of a bar. Gaps are normalized by
// the even spacing of their parent segment so a bar that slows down inside a
// beat is not punished at the finer levels for the beat's own length.
func (m *Model) evenness(start, end int64, marks []mark, divisions []int, level int) float64 {
	div := divisions[level]
	if div <= 1 {
		return 0
	}
	points := levelPoints(start, end, marks, kindAt(level))

	gaps := make([]float64, 0, len(points)-1)
	for i := 0; i+div < len(points); i += div {
		parent := float64(points[i+div] - points[i])
		for j := i; j < i+div; j++ {
			gaps = append(gaps, float64(points[j+1]-points[j])*float64(div)/parent)
		}
	}

	cv := util.CoefficientOfVariation(gaps)
	if cv < m.cfg.AcceptableCV {
		return math.Log(m.cfg.EvennessFloor)
	}
	return util.LogGaussian(cv, 0, m.cfg.spacingStd(level))
}

// levelPoints returns start, every mark at least as strong as kind, and end.
func levelPoints(start, end int64, marks []mark, kind model.PulseKind) []int64 {
	points := []int64{start}
	for _, mk := range marks {
		if mk.kind >= kind {
			points = append(points, mk.time)
		}
	}
	return append(points, end)
}

// downbeatScore is the log of the strongest prior among notes close to t, or
// the rest prior when no note is close.
func (m *Model) downbeatScore(t int64, notes []model.NoteEvent) float64 {
	best := 0.0
	for _, n := range notes {
		if util.Abs(n.Onset-t) > m.cfg.DownbeatTolerance {
			continue
		}
		if p := m.prior(n); p > best {
			best = p
		}
	}
	if best == 0 {
		return math.Log(m.cfg.RestPrior)
	}
	return math.Log(best)
}

func (m *Model) prior(n model.NoteEvent) float64 {
	if m.priors != nil {
		if p, ok := m.priors.Prior(n); ok {
			return p
		}
	}
	return m.cfg.DefaultNotePrior
}

// place scores every note before frontier against its nearest pulse in times
// (sorted) and returns the score with the notes left unplaced.
func (m *Model) place(notes []model.NoteEvent, times []int64, frontier int64) (float64, []model.NoteEvent) {
	var total float64
	i := 0
	for ; i < len(notes) && notes[i].Onset < frontier; i++ {
		d := nearest(times, notes[i].Onset)
		total += util.LogGaussian(float64(d), 0, m.cfg.NoteDeviationStd)
	}
	if i == len(notes) {
		return total, nil
	}
	rest := make([]model.NoteEvent, len(notes)-i)
	copy(rest, notes[i:])
	return total, rest
}

// nearest is the distance from t to the closest of the sorted times.
func nearest(times []int64, t int64) int64 {
	i := sort.Search(len(times), func(i int) bool {
		return times[i] >= t
	})
	best := int64(math.MaxInt64)
	if i < len(times) {
		best = times[i] - t
	}
	if i > 0 {
		best = util.Min(best, t-times[i-1])
	}
	return best
}

// scoreBar scores one lattice spanning [start, end]. before holds the pulses
// preceding the bar (pickup pulses) for note placement. prevTempo is 0 for
// the first bar.
func (m *Model) scoreBar(meter model.Meter, prevTempo float64, start, end int64, marks []mark, before []int64, notes []model.NoteEvent) (barScore, []model.NoteEvent) {
	var s barScore
	beatLen := float64(end-start) / float64(meter.BeatsPerBar)
	s.tempo = m.tempoScore(prevTempo, beatLen)

	divisions := meter.Divisions()
	for level := range divisions {
		s.evenness[level] = m.evenness(start, end, marks, divisions, level)
	}

	s.downbeat = m.downbeatScore(end, notes)
	if prevTempo <= 0 {
		s.downbeat += m.downbeatScore(start, notes)
	}

	times := make([]int64, 0, len(before)+len(marks)+2)
	times = append(times, before...)
	times = append(times, start)
	for _, mk := range marks {
		times = append(times, mk.time)
	}
	times = append(times, end)

	last := start
	if len(marks) > 0 {
		last = marks[len(marks)-1].time
	}
	frontier := end + (end-last)/2

	var rest []model.NoteEvent
	s.deviation, rest = m.place(notes, times, frontier)
	return s, rest
}
