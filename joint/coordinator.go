package joint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jsphweid/metalign/batch"
	"github.com/jsphweid/metalign/model"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrBeamExhausted means no hypothesis survived a step. The previous beam
	// is kept so the caller can decide how to recover.
	ErrBeamExhausted = errors.New("beam exhausted: no hypothesis survived")

	ErrClosed = errors.New("coordinator already closed")
)

type BeamConfig struct {
	// GlobalCap keeps the top started hypotheses. 0 disables it.
	GlobalCap int `yaml:"global_cap" json:"global_cap" validate:"gte=0"`

	// VoiceCap bounds the number of voice partitions. 0 disables it.
	VoiceCap int `yaml:"voice_cap" json:"voice_cap" validate:"gte=0"`

	Workers            int  `yaml:"workers" json:"workers" validate:"gte=1"`
	MaxCloseIterations int  `yaml:"max_close_iterations" json:"max_close_iterations" validate:"gte=1"`
	PartitionByBars    bool `yaml:"partition_by_bars" json:"partition_by_bars"`
}

func DefaultBeamConfig() BeamConfig {
	return BeamConfig{
		GlobalCap:          200,
		VoiceCap:           20,
		Workers:            4,
		MaxCloseIterations: 1000,
	}
}

type Option func(*Coordinator)

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

func WithPartition(p PartitionFunc) Option {
	return func(c *Coordinator) {
		c.partition = p
	}
}

// Coordinator drives the joint search: one Step per batch of notes, then one
// Close at the end of the stream.
//
// Thread Safety: Step, Close and Hypotheses must not be called concurrently.
// Expansion inside a call is parallel.
type Coordinator struct {
	cfg       BeamConfig
	log       *slog.Logger
	observer  Observer
	partition PartitionFunc

	beam      *Beam
	closed    bool
	steps     int
	lastOnset int64
}

func NewCoordinator(v VoiceState, b BeatState, h HierarchyState, cfg BeamConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		log:       slog.Default(),
		observer:  nopObserver{},
		lastOnset: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.partition == nil && cfg.PartitionByBars {
		c.partition = PartitionByBars
	}
	if c.cfg.Workers < 1 {
		c.cfg.Workers = 1
	}
	if c.cfg.MaxCloseIterations < 1 {
		c.cfg.MaxCloseIterations = DefaultBeamConfig().MaxCloseIterations
	}

	c.beam = c.newBeam()
	c.beam.Insert(NewHypothesis(v, b, h))
	return c
}

func (c *Coordinator) newBeam() *Beam {
	return NewBeam(c.cfg.GlobalCap, c.cfg.VoiceCap, c.partition)
}

// Hypotheses returns the current beam in rank order.
func (c *Coordinator) Hypotheses() []*Hypothesis {
	return c.beam.Snapshot(false)
}

func (c *Coordinator) Closed() bool {
	return c.closed
}

// Step consumes one batch of notes sharing an onset.
func (c *Coordinator) Step(ctx context.Context, b model.Batch) error {
	if c.closed {
		return ErrClosed
	}
	if len(b) == 0 {
		return nil
	}
	onset := b[0].Onset
	for _, n := range b {
		if n.Onset != onset {
			return fmt.Errorf("%w: mixed onsets %d and %d", batch.ErrInvalidBatch, onset, n.Onset)
		}
	}
	if onset <= c.lastOnset {
		return fmt.Errorf("%w: onset %d does not follow %d", batch.ErrInvalidBatch, onset, c.lastOnset)
	}

	next, err := c.advance(ctx, "step", c.stepExpander(b))
	if err != nil {
		return err
	}
	c.lastOnset = onset
	c.beam = next
	return nil
}

// Close finalizes every hypothesis, repeating the sub-models' close
// operations until nothing is left pending. Closing twice is a no-op.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}

	for i := 0; ; i++ {
		if i >= c.cfg.MaxCloseIterations {
			c.log.Warn("close did not reach a fixed point",
				"iterations", i, "hypotheses", c.beam.Len())
			break
		}
		next, err := c.advance(ctx, "close", c.closeExpander())
		if err != nil {
			return err
		}
		c.beam = next
		if !anyPending(next) {
			break
		}
	}

	c.closed = true
	return nil
}

func anyPending(b *Beam) bool {
	for _, list := range [][]*Hypothesis{b.started, b.unstarted} {
		for _, h := range list {
			if h.Pending() {
				return true
			}
		}
	}
	return false
}

type expander func(parent *Hypothesis, m *memos) []*Hypothesis

func (c *Coordinator) stepExpander(b model.Batch) expander {
	key := batch.CreateBatchKey(b)
	return func(parent *Hypothesis, m *memos) []*Hypothesis {
		var res []*Hypothesis
		voices := m.voice.get(voiceKey{parent.voice, key}, func() []VoiceState {
			return parent.voice.Step(b)
		})
		meters := parent.hierarchy.Meters()
		metersKey := meterKey(meters)
		for _, v := range voices {
			filtered := v.Filter(b)
			filteredKey := batch.CreateBatchKey(filtered)
			beats := m.beat.get(beatKey{parent.beat, filteredKey, metersKey}, func() []BeatState {
				return parent.beat.Step(filtered, meters)
			})
			for _, bt := range beats {
				hs := m.hierarchy.get(hierarchyKey{parent.hierarchy, bt, filteredKey}, func() []HierarchyState {
					return parent.hierarchy.Step(filtered, bt)
				})
				for _, h := range hs {
					res = append(res, NewHypothesis(v, bt, h))
				}
			}
		}
		return res
	}
}

func (c *Coordinator) closeExpander() expander {
	return func(parent *Hypothesis, m *memos) []*Hypothesis {
		var res []*Hypothesis
		voices := m.voice.get(voiceKey{state: parent.voice}, func() []VoiceState {
			return parent.voice.Close()
		})
		meters := parent.hierarchy.Meters()
		metersKey := meterKey(meters)
		for _, v := range voices {
			beats := m.beat.get(beatKey{state: parent.beat, meters: metersKey}, func() []BeatState {
				return parent.beat.Close(meters)
			})
			for _, bt := range beats {
				hs := m.hierarchy.get(hierarchyKey{state: parent.hierarchy, beat: bt}, func() []HierarchyState {
					return parent.hierarchy.Close(bt)
				})
				for _, h := range hs {
					res = append(res, NewHypothesis(v, bt, h))
				}
			}
		}
		return res
	}
}

// advance expands every parent of the current beam into a new beam.
//
// Parents are expanded in waves. The first wave holds every unstarted parent
// and the top GlobalCap started ones. After each wave the new beam is rebuilt
// from all children so far, and any remaining started parent scoring at least
// its worst kept score joins the next wave. Started states only ever add
// non-positive log-probabilities, so a parent left below that score has
// children ranked under every hypothesis that decides the cut, and none of
// them would be kept.
func (c *Coordinator) advance(ctx context.Context, kind string, expand expander) (*Beam, error) {
	start := time.Now()
	parents := c.beam.Snapshot(false)
	m := newMemos()

	kids := make([][]*Hypothesis, len(parents))
	done := make([]bool, len(parents))
	expanded := 0

	var next *Beam
	for wave := c.firstWave(parents); len(wave) > 0; {
		if err := c.expandWave(ctx, parents, wave, expand, m, kids); err != nil {
			return nil, fmt.Errorf("%s %d: %w", kind, c.steps, err)
		}
		for _, i := range wave {
			done[i] = true
		}
		expanded += len(wave)

		next = c.newBeam()
		for i := range parents {
			for _, kid := range kids[i] {
				next.Insert(kid)
			}
		}
		next.EvictToCaps()

		worst := next.WorstKeptScore()
		wave = wave[:0]
		for i, p := range parents {
			if !done[i] && p.score >= worst {
				wave = append(wave, i)
			}
		}
	}
	if next == nil {
		next = c.newBeam()
	}

	children := 0
	for _, list := range kids {
		children += len(list)
	}

	stats := StepStats{
		Kind:      kind,
		Index:     c.steps,
		Parents:   len(parents),
		Skipped:   len(parents) - expanded,
		Children:  children,
		Kept:      next.Len(),
		Started:   next.StartedLen(),
		Collapsed: next.Collapsed(),
		Evicted:   next.Evicted(),
		MemoHits:  m.hits(),
		BestScore: math.Inf(-1),
		Duration:  time.Since(start),
	}
	if best := next.Snapshot(false); len(best) > 0 {
		stats.BestScore = best[0].score
	}
	c.steps++
	c.observer.ObserveStep(stats)
	c.log.Debug("beam advanced",
		"kind", kind,
		"index", stats.Index,
		"parents", stats.Parents,
		"skipped", stats.Skipped,
		"children", stats.Children,
		"kept", stats.Kept,
		"started", stats.Started,
		"collapsed", stats.Collapsed,
		"evicted", stats.Evicted,
		"best", stats.BestScore,
	)

	if next.Len() == 0 {
		c.log.Warn("beam exhausted", "kind", kind, "index", stats.Index, "parents", len(parents))
		return nil, ErrBeamExhausted
	}
	return next, nil
}

// firstWave is every unstarted parent plus the best GlobalCap started ones,
// or every parent when the global cap cannot bound the beam.
func (c *Coordinator) firstWave(parents []*Hypothesis) []int {
	bounded := c.cfg.GlobalCap != Disabled && c.partition == nil
	wave := make([]int, 0, len(parents))
	started := 0
	for i, p := range parents {
		if bounded && p.Started() {
			if started >= c.cfg.GlobalCap {
				continue
			}
			started++
		}
		wave = append(wave, i)
	}
	return wave
}

// expandWave expands the parents at the given indexes in parallel. Children
// land in kids at their parent's index.
func (c *Coordinator) expandWave(ctx context.Context, parents []*Hypothesis, wave []int, expand expander, m *memos, kids [][]*Hypothesis) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for _, i := range wave {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			kids[i] = expand(parents[i], m)
			return nil
		})
	}
	return g.Wait()
}

func meterKey(meters []model.Meter) string {
	keys := make([]string, len(meters))
	for i, m := range meters {
		keys[i] = m.String()
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
