package beat

import (
	"math"
	"testing"

	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fourFour = model.Meter{BeatsPerBar: 4, SubBeatsPerBeat: 1, TatumsPerSubBeat: 1}

// stepAll feeds every note to every state, one onset at a time.
func stepAll(start []joint.BeatState, notes []model.NoteEvent, meters []model.Meter) []joint.BeatState {
	current := start
	for _, n := range notes {
		var next []joint.BeatState
		for _, s := range current {
			next = append(next, s.Step(model.Batch{n}, meters)...)
		}
		current = next
	}
	return current
}

func closeAll(current []joint.BeatState, meters []model.Meter) []joint.BeatState {
	for i := 0; i < 100; i++ {
		var next []joint.BeatState
		pending := false
		for _, s := range current {
			kids := s.Close(meters)
			next = append(next, kids...)
			for _, k := range kids {
				pending = pending || k.Pending()
			}
		}
		current = next
		if !pending {
			break
		}
	}
	return current
}

func assertMonotone(t *testing.T, states []joint.BeatState) {
	t.Helper()
	for _, s := range states {
		tatums := s.Tatums()
		for i := 1; i < len(tatums); i++ {
			assert.Greater(t, tatums[i].Time, tatums[i-1].Time)
		}
	}
}

func trackingAt(m *Model, meter model.Meter, last int64, tempo float64) *State {
	s := &State{
		model:    m,
		phase:    Tracking,
		meter:    meter,
		hasMeter: true,
		pulses:   (*pulse)(nil).push(last, model.Downbeat),
		tempo:    tempo,
		bars:     1,
	}
	return s.finish()
}

func TestEvenBarHasOneLatticeAtTheFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EvennessFloor = 0.8
	m := NewModel(cfg)
	meter := model.Meter{BeatsPerBar: 4, SubBeatsPerBeat: 2, TatumsPerSubBeat: 1}
	s := trackingAt(m, meter, 0, 500_000)

	kids := s.addBar()

	assert := assert.New(t)
	require.Len(t, kids, 1)
	tatums := kids[0].Tatums()
	require.Len(t, tatums, 9)
	for i, tatum := range tatums {
		assert.Equal(int64(i)*250_000, tatum.Time)
	}
	assert.Equal(model.Downbeat, tatums[0].Kind)
	assert.Equal(model.SubBeatPulse, tatums[1].Kind)
	assert.Equal(model.BeatPulse, tatums[2].Kind)
	assert.Equal(model.Downbeat, tatums[8].Kind)

	g := newGenerator(&cfg, nil, meter)
	alts := g.divide(0, 2_000_000, 0)
	require.Len(t, alts, 1)
	divisions := meter.Divisions()
	assert.InDelta(math.Log(0.8), m.evenness(0, 2_000_000, alts[0].marks, divisions, 0), 1e-9)
	assert.InDelta(math.Log(0.8), m.evenness(0, 2_000_000, alts[0].marks, divisions, 1), 1e-9)
	assert.Equal(0.0, m.evenness(0, 2_000_000, alts[0].marks, divisions, 2))

	// no tempo change, no notes, a rest on the downbeat
	expected := 2*math.Log(0.8) + math.Log(cfg.RestPrior)
	assert.InDelta(expected, kids[0].Score(), 1e-9)
	assert.Equal(2, kids[0].Bars())
	assert.Equal(500_000.0, kids[0].Tempo())
}

func TestUnevenBarScoresBelowEvenBar(t *testing.T) {
	m := NewModel(DefaultConfig())
	marks := []mark{
		{time: 400_000, kind: model.BeatPulse},
		{time: 1_000_000, kind: model.BeatPulse},
		{time: 1_500_000, kind: model.BeatPulse},
	}
	divisions := fourFour.Divisions()
	uneven := m.evenness(0, 2_000_000, marks, divisions, 0)
	assert.Less(t, uneven, 0.0)
}

func TestShortSpanStaysEmpty(t *testing.T) {
	cfg := DefaultConfig()
	m := NewModel(cfg)
	meters := []model.Meter{{BeatsPerBar: 4, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}}

	states := stepAll([]joint.BeatState{m.Initial()}, notesAt(0, 300_000), meters)

	assert := assert.New(t)
	require.Len(t, states, 1)
	s := states[0].(*State)
	assert.Equal(Empty, s.Phase())
	assert.False(s.Started())
	assert.Empty(s.Tatums())
	assert.InDelta(2*cfg.EmptyNoteFloor, s.Score(), 1e-9)
}

func TestSpanLongerThanAnyBarDropsBranch(t *testing.T) {
	m := NewModel(DefaultConfig())
	meters := []model.Meter{fourFour}

	states := stepAll([]joint.BeatState{m.Initial()}, notesAt(0, 7_000_000), meters)
	assert.Empty(t, states)
}

func TestFirstBarIsPlacedOnTheNotes(t *testing.T) {
	cfg := DefaultConfig()
	m := NewModel(cfg)
	meters := []model.Meter{fourFour}

	states := stepAll([]joint.BeatState{m.Initial()}, notesAt(0, 500_000, 1_000_000, 1_500_000, 2_000_000), meters)
	assertMonotone(t, states)

	var found *State
	for _, s := range states {
		bs := s.(*State)
		if bs.Phase() == Tracking && bs.Tempo() == 500_000 {
			found = bs
		}
	}
	require.NotNil(t, found)

	assert := assert.New(t)
	assert.True(found.Started())
	assert.Equal(1, found.Bars())
	assert.Equal(0, found.Unplaced())
	meter, ok := found.Meter()
	assert.True(ok)
	assert.Equal(fourFour, meter)

	var times []int64
	for _, tatum := range found.Tatums() {
		times = append(times, tatum.Time)
	}
	assert.Equal([]int64{0, 500_000, 1_000_000, 1_500_000, 2_000_000}, times)
	assert.InDelta(2*math.Log(cfg.DefaultNotePrior), found.Score(), 1e-9)
}

func TestDownbeatPriorsAreUsed(t *testing.T) {
	m := NewModel(DefaultConfig(), WithPriors(priorFunc(func(n model.NoteEvent) (float64, bool) {
		return 0.9, n.Onset == 0
	})))
	notes := notesAt(0, 100_000)

	assert := assert.New(t)
	assert.InDelta(math.Log(0.9), m.downbeatScore(0, notes), 1e-9)
	assert.InDelta(math.Log(0.5), m.downbeatScore(100_000, notes), 1e-9)
	assert.InDelta(math.Log(0.2), m.downbeatScore(1_000_000, notes), 1e-9)
}

type priorFunc func(n model.NoteEvent) (float64, bool)

func (f priorFunc) Prior(n model.NoteEvent) (float64, bool) { return f(n) }

func TestTrackingDefersUntilABarOfLookahead(t *testing.T) {
	m := NewModel(DefaultConfig())
	s := trackingAt(m, fourFour, 2_000_000, 500_000)

	assert := assert.New(t)
	near := s.Step(model.Batch{notesAt(3_000_000)[0]}, nil)
	require.Len(t, near, 1)
	assert.Equal(1, near[0].Bars())

	far := s.Step(model.Batch{notesAt(6_000_000)[0]}, nil)
	require.NotEmpty(t, far)
	for _, kid := range far {
		assert.GreaterOrEqual(kid.Bars(), 2)
	}
	assertMonotone(t, far)
}

func TestCloseFinishesTrailingNotes(t *testing.T) {
	m := NewModel(DefaultConfig())
	meters := []model.Meter{fourFour}
	s := trackingAt(m, fourFour, 2_000_000, 500_000)

	states := s.Step(model.Batch{notesAt(2_600_000)[0]}, meters)
	require.Len(t, states, 1)
	assert.True(t, states[0].Pending())

	closed := closeAll(states, meters)

	assert := assert.New(t)
	require.NotEmpty(t, closed)
	for _, c := range closed {
		bs := c.(*State)
		assert.Equal(Closed, bs.Phase())
		assert.False(bs.Pending())
		assert.Equal(0, bs.Unplaced())
		assert.Equal(2, bs.Bars())
	}
	assertMonotone(t, closed)
}

func TestCloseOfEmptyStateWithoutSpanCloses(t *testing.T) {
	cfg := DefaultConfig()
	m := NewModel(cfg)
	meters := []model.Meter{fourFour}

	states := stepAll([]joint.BeatState{m.Initial()}, notesAt(0), meters)
	closed := closeAll(states, meters)

	assert := assert.New(t)
	require.Len(t, closed, 1)
	assert.Equal(Closed, closed[0].(*State).Phase())
	assert.False(closed[0].Pending())
	assert.InDelta(cfg.EmptyNoteFloor, closed[0].Score(), 1e-9)

	again := closed[0].Close(meters)
	assert.Same(closed[0], again[0])
}

func TestAnacrusisBackFillsPickupPulses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAnacrusis = 600_000
	m := NewModel(cfg)
	meters := []model.Meter{fourFour}

	notes := notesAt(0, 500_000, 1_000_000, 1_500_000, 2_000_000, 2_500_000)
	states := stepAll([]joint.BeatState{m.Initial()}, notes, meters)
	assertMonotone(t, states)

	var found *State
	for _, s := range states {
		bs := s.(*State)
		if bs.Anacrusis() == 1 && bs.Tempo() == 500_000 {
			found = bs
		}
	}
	require.NotNil(t, found)

	tatums := found.Tatums()
	assert := assert.New(t)
	require.Len(t, tatums, 6)
	assert.Equal(model.Tatum{Time: 0, Kind: model.BeatPulse}, tatums[0])
	assert.Equal(model.Tatum{Time: 500_000, Kind: model.Downbeat}, tatums[1])
	assert.Equal(model.Tatum{Time: 2_500_000, Kind: model.Downbeat}, tatums[5])
}

func TestDuplicates(t *testing.T) {
	m := NewModel(DefaultConfig())
	threeFour := model.Meter{BeatsPerBar: 3, SubBeatsPerBeat: 1, TatumsPerSubBeat: 1}
	base := trackingAt(m, fourFour, 2_000_000, 500_000)

	cases := []struct {
		name     string
		other    *State
		expected bool
	}{
		{"close tempo and pulse", trackingAt(m, fourFour, 2_010_000, 505_000), true},
		{"pulse too far", trackingAt(m, fourFour, 2_100_000, 500_000), false},
		{"tempo too far", trackingAt(m, fourFour, 2_000_000, 550_000), false},
		{"other meter", trackingAt(m, threeFour, 2_000_000, 500_000), false},
		{"empty", m.Initial(), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, base.Duplicates(c.other))
			assert.Equal(t, c.expected, c.other.Duplicates(base))
		})
	}
}

func TestStepDoesNotChangeParent(t *testing.T) {
	m := NewModel(DefaultConfig())
	s := trackingAt(m, fourFour, 2_000_000, 500_000)
	key := s.Key()

	s.Step(model.Batch{notesAt(6_000_000)[0]}, nil)

	assert := assert.New(t)
	assert.Equal(key, s.Key())
	assert.Equal(0, s.Unplaced())
	assert.Len(s.Tatums(), 1)
}
