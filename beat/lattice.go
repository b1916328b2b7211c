package beat

import (
	"math"
	"sort"

	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/util"
)

// mark is a pulse placed inside a bar, before it is linked into a chain.
type mark struct {
	time int64
	kind model.PulseKind
}

// alternative is one candidate placement of the pulses strictly inside a
// span, together with the note deviation of the notes in that span.
type alternative struct {
	marks     []mark
	deviation float64
}

// generator builds the candidate lattices of one bar. notes are the unplaced
// notes, sorted by onset.
type generator struct {
	cfg       *Config
	notes     []model.NoteEvent
	divisions []int
}

func newGenerator(cfg *Config, notes []model.NoteEvent, meter model.Meter) *generator {
	return &generator{cfg: cfg, notes: notes, divisions: meter.Divisions()}
}

// kindAt is the kind of the boundaries created when splitting at level.
func kindAt(level int) model.PulseKind {
	switch level {
	case 0:
		return model.BeatPulse
	case 1:
		return model.SubBeatPulse
	default:
		return model.TatumPulse
	}
}

// onsetsWithin returns the distinct onsets within window of t.
func (g *generator) onsetsWithin(t int64, window float64) []int64 {
	lo := t - int64(math.Floor(window))
	i := sort.Search(len(g.notes), func(i int) bool {
		return g.notes[i].Onset >= lo
	})
	var res []int64
	for ; i < len(g.notes); i++ {
		onset := g.notes[i].Onset
		if float64(onset-t) > window {
			break
		}
		if math.Abs(float64(onset-t)) > window {
			continue
		}
		if len(res) == 0 || res[len(res)-1] != onset {
			res = append(res, onset)
		}
	}
	return res
}

// nudge offers the raw time and, when onsets are close, the raw time pulled
// toward them by Magnetism. With several close onsets the pull is toward
// their centroid instead of any single one.
func (g *generator) nudge(raw int64, window float64) []int64 {
	near := g.onsetsWithin(raw, window)
	if len(near) == 0 {
		return []int64{raw}
	}
	var target float64
	for _, onset := range near {
		target += float64(onset)
	}
	target /= float64(len(near))
	moved := raw + int64(math.Round(g.cfg.Magnetism*(target-float64(raw))))
	return []int64{raw, moved}
}

// candidates returns the sorted, distinct options for a boundary estimated at
// est that lie strictly between lo and hi.
func (g *generator) candidates(est int64, window, nudgeWindow float64, lo, hi int64) []int64 {
	raws := []int64{est}
	raws = append(raws, g.onsetsWithin(est, window)...)

	seen := make(map[int64]bool)
	var res []int64
	for _, raw := range raws {
		for _, t := range g.nudge(raw, nudgeWindow) {
			if t <= lo || t >= hi || seen[t] {
				continue
			}
			seen[t] = true
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i] < res[j]
	})
	return res
}

// nudgeWindow is half the width of the unit one level finer than the parts
// created at level.
func (g *generator) nudgeWindow(width float64, level int) float64 {
	if level+1 < len(g.divisions) {
		return width / float64(g.divisions[level+1]) / 2
	}
	return width / 2
}

// barEnds returns the candidate ends of a bar starting at start whose
// expected length is barLen.
func (g *generator) barEnds(start int64, barLen float64) []int64 {
	est := start + int64(math.Round(barLen))
	beatLen := barLen / float64(g.divisions[0])
	return g.candidates(est, g.cfg.BoundaryWindow*barLen, g.nudgeWindow(beatLen, 0), start, math.MaxInt64)
}

// divide returns every placement of the pulses strictly inside (a, b) from
// level down to the tatums.
func (g *generator) divide(a, b int64, level int) []alternative {
	if level == len(g.divisions) {
		return []alternative{{deviation: g.deviation(a, b, nil)}}
	}
	n := g.divisions[level]
	kind := kindAt(level)
	width := float64(b-a) / float64(n)
	nudgeWindow := g.nudgeWindow(width, level)

	var res []alternative
	for _, bounds := range g.boundaries(a, b, n, nudgeWindow) {
		points := make([]int64, 0, n+1)
		points = append(points, a)
		points = append(points, bounds...)
		points = append(points, b)

		combos := []alternative{{}}
		for j := 0; j < n; j++ {
			subs := g.divide(points[j], points[j+1], level+1)
			next := make([]alternative, 0, len(combos)*len(subs))
			for _, prefix := range combos {
				for _, sub := range subs {
					marks := make([]mark, 0, len(prefix.marks)+len(sub.marks)+1)
					marks = append(marks, prefix.marks...)
					marks = append(marks, sub.marks...)
					if j < n-1 {
						marks = append(marks, mark{time: points[j+1], kind: kind})
					}
					next = append(next, alternative{
						marks:     marks,
						deviation: prefix.deviation + sub.deviation,
					})
				}
			}
			combos = g.prune(next)
		}
		res = append(res, combos...)
	}
	return g.prune(res)
}

// boundaries returns every increasing choice of the n-1 boundaries that split
// (a, b) into n parts. Each boundary is estimated by spreading the remaining
// span evenly from the previous choice.
func (g *generator) boundaries(a, b int64, n int, nudgeWindow float64) [][]int64 {
	if n <= 1 {
		return [][]int64{nil}
	}
	var res [][]int64
	var walk func(prev int64, i int, acc []int64)
	walk = func(prev int64, i int, acc []int64) {
		if i == n {
			res = append(res, acc)
			return
		}
		width := float64(b-prev) / float64(n-i+1)
		est := prev + int64(math.Round(width))
		for _, t := range g.candidates(est, g.cfg.BoundaryWindow*width, nudgeWindow, prev, b) {
			walk(t, i+1, append(acc[:len(acc):len(acc)], t))
		}
	}
	walk(a, 1, nil)
	return res
}

// deviation scores the notes with onsets in [a, b) against the nearest of a,
// b and marks.
func (g *generator) deviation(a, b int64, marks []mark) float64 {
	lo := sort.Search(len(g.notes), func(i int) bool {
		return g.notes[i].Onset >= a
	})
	var total float64
	for i := lo; i < len(g.notes) && g.notes[i].Onset < b; i++ {
		onset := g.notes[i].Onset
		d := util.Min(onset-a, b-onset)
		for _, m := range marks {
			d = util.Min(d, util.Abs(onset-m.time))
		}
		total += util.LogGaussian(float64(d), 0, g.cfg.NoteDeviationStd)
	}
	return total
}

// prune keeps the MaxLattices alternatives with the best note deviation.
func (g *generator) prune(alts []alternative) []alternative {
	if g.cfg.MaxLattices == 0 || len(alts) <= g.cfg.MaxLattices {
		return alts
	}
	sort.SliceStable(alts, func(i, j int) bool {
		return alts[i].deviation > alts[j].deviation
	})
	return alts[:g.cfg.MaxLattices]
}
