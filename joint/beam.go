package joint

import (
	"math"
	"sort"
)

// Disabled turns a beam cap off.
const Disabled = 0

// PartitionFunc splits a beam into groups that are capped independently.
type PartitionFunc func(h *Hypothesis) int

// PartitionByBars caps hypotheses with the same number of completed bars
// against each other only.
func PartitionByBars(h *Hypothesis) int {
	return h.beat.Bars()
}

// Beam is the bounded set of hypotheses kept between steps.
//
// Inserted hypotheses are pooled. Duplicates are resolved over the whole
// pool at once, in rank order: a hypothesis survives only if it duplicates
// no better ranked survivor. The result depends on the set inserted, never
// on the insertion order.
//
// Thread Safety: not safe for concurrent use.
type Beam struct {
	globalCap int
	voiceCap  int
	partition PartitionFunc

	pending   []*Hypothesis
	started   []*Hypothesis
	unstarted []*Hypothesis

	collapsed int
	evicted   int
}

func NewBeam(globalCap, voiceCap int, partition PartitionFunc) *Beam {
	return &Beam{
		globalCap: globalCap,
		voiceCap:  voiceCap,
		partition: partition,
	}
}

func (b *Beam) Len() int {
	b.collapse()
	return len(b.started) + len(b.unstarted)
}

func (b *Beam) StartedLen() int {
	b.collapse()
	return len(b.started)
}

// Collapsed is the number of hypotheses dropped as duplicates so far.
func (b *Beam) Collapsed() int {
	b.collapse()
	return b.collapsed
}

// Evicted is the number of hypotheses dropped by the caps so far.
func (b *Beam) Evicted() int {
	return b.evicted
}

// Insert adds h to the pool.
func (b *Beam) Insert(h *Hypothesis) {
	b.pending = append(b.pending, h)
}

// collapse folds the pending pool into the beam, keeping each hypothesis
// only when no better ranked kept hypothesis duplicates it.
func (b *Beam) collapse() {
	if len(b.pending) == 0 {
		return
	}
	all := make([]*Hypothesis, 0, len(b.started)+len(b.unstarted)+len(b.pending))
	all = append(all, b.started...)
	all = append(all, b.unstarted...)
	all = append(all, b.pending...)
	sortRanked(all)

	kept := make([]*Hypothesis, 0, len(all))
	b.started, b.unstarted, b.pending = nil, nil, nil
	for _, h := range all {
		if duplicatesAny(h, kept) {
			b.collapsed++
			continue
		}
		kept = append(kept, h)
		if h.Started() {
			b.started = append(b.started, h)
		} else {
			b.unstarted = append(b.unstarted, h)
		}
	}
}

func duplicatesAny(h *Hypothesis, kept []*Hypothesis) bool {
	for _, k := range kept {
		if h.Duplicates(k) {
			return true
		}
	}
	return false
}

// EvictToCaps resolves duplicates, enforces the global and voice caps and
// returns how many hypotheses the caps dropped. Call it once every candidate
// of a step has been inserted.
func (b *Beam) EvictToCaps() int {
	b.collapse()
	before := len(b.started) + len(b.unstarted)

	if b.partition == nil {
		b.started, b.unstarted = applyCaps(b.started, b.unstarted, b.globalCap, b.voiceCap)
	} else {
		b.evictPartitioned()
	}

	dropped := before - len(b.started) - len(b.unstarted)
	b.evicted += dropped
	return dropped
}

func (b *Beam) evictPartitioned() {
	type group struct {
		started   []*Hypothesis
		unstarted []*Hypothesis
	}
	groups := make(map[int]*group)
	var order []int
	get := func(k int) *group {
		g, ok := groups[k]
		if !ok {
			g = &group{}
			groups[k] = g
			order = append(order, k)
		}
		return g
	}
	for _, h := range b.started {
		g := get(b.partition(h))
		g.started = append(g.started, h)
	}
	for _, h := range b.unstarted {
		g := get(b.partition(h))
		g.unstarted = append(g.unstarted, h)
	}

	sort.Ints(order)
	b.started, b.unstarted = nil, nil
	for _, k := range order {
		g := groups[k]
		s, u := applyCaps(g.started, g.unstarted, b.globalCap, b.voiceCap)
		b.started = append(b.started, s...)
		b.unstarted = append(b.unstarted, u...)
	}
}

// Snapshot returns every hypothesis in rank order. With remove set the beam
// is emptied.
func (b *Beam) Snapshot(remove bool) []*Hypothesis {
	b.collapse()
	res := make([]*Hypothesis, 0, b.Len())
	res = append(res, b.started...)
	res = append(res, b.unstarted...)
	sortRanked(res)

	if remove {
		b.started = nil
		b.unstarted = nil
	}
	return res
}

// WorstKeptScore is the score a hypothesis must reach to survive the global
// cap, or -Inf while the cap is not binding. Partitioned beams always report
// -Inf since a newcomer may open a fresh partition.
func (b *Beam) WorstKeptScore() float64 {
	b.collapse()
	if b.globalCap == Disabled || b.partition != nil || len(b.started) < b.globalCap {
		return math.Inf(-1)
	}
	sortRanked(b.started)
	return b.started[b.globalCap-1].score
}

// applyGlobalCap keeps the top globalCap started hypotheses and, once that
// many exist, drops every hypothesis scoring below the last one kept.
func applyGlobalCap(started, unstarted []*Hypothesis, globalCap int) ([]*Hypothesis, []*Hypothesis) {
	sortRanked(started)
	sortRanked(unstarted)

	if globalCap != Disabled && len(started) >= globalCap {
		threshold := started[globalCap-1].score
		started = started[:globalCap]
		unstarted = atLeast(unstarted, threshold)
	}
	return started, unstarted
}

// applyCaps is a pure top-K selection: its result does not depend on the
// order of the input slices.
func applyCaps(started, unstarted []*Hypothesis, globalCap, voiceCap int) ([]*Hypothesis, []*Hypothesis) {
	started, unstarted = applyGlobalCap(started, unstarted, globalCap)

	if voiceCap == Disabled {
		return started, unstarted
	}
	total := len(started) + len(unstarted)
	if globalCap != Disabled && total <= globalCap {
		return started, unstarted
	}

	all := make([]*Hypothesis, 0, total)
	all = append(all, started...)
	all = append(all, unstarted...)
	sortRanked(all)

	threshold := math.Inf(-1)
	if globalCap != Disabled {
		threshold = all[globalCap-1].score
	}

	// classes are ranked by their best member
	classes := make(map[uint64]bool)
	for _, h := range all {
		if len(classes) >= voiceCap {
			break
		}
		classes[h.voice.PartitionKey()] = true
	}

	keep := func(list []*Hypothesis) []*Hypothesis {
		res := list[:0:0]
		for _, h := range list {
			if classes[h.voice.PartitionKey()] && h.score >= threshold {
				res = append(res, h)
			}
		}
		return res
	}
	return keep(started), keep(unstarted)
}

func atLeast(list []*Hypothesis, threshold float64) []*Hypothesis {
	res := list[:0:0]
	for _, h := range list {
		if h.score >= threshold {
			res = append(res, h)
		}
	}
	return res
}

func sortRanked(list []*Hypothesis) {
	sort.Slice(list, func(i, j int) bool {
		return Rank(list[i], list[j])
	})
}
