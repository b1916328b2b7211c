package hierarchy

import (
	"math"
	"testing"

	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBeat only answers what the hierarchy model asks for.
type fakeBeat struct {
	joint.BeatState
	meter     model.Meter
	placed    bool
	anacrusis int
}

func (f fakeBeat) Meter() (model.Meter, bool) { return f.meter, f.placed }
func (f fakeBeat) Anacrusis() int { return f.anacrusis }

var (
	fourFour  = model.Meter{BeatsPerBar: 4, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}
	threeFour = model.Meter{BeatsPerBar: 3, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}
	fiveFour  = model.Meter{BeatsPerBar: 5, SubBeatsPerBeat: 2, TatumsPerSubBeat: 2}
)

func TestUncommittedOffersEveryCandidate(t *testing.T) {
	m := NewModel(DefaultConfig())
	s := m.Initial()

	kids := s.Step(nil, fakeBeat{})

	assert := assert.New(t)
	require.Len(t, kids, 1)
	assert.Same(s, kids[0])
	assert.False(s.Started())
	assert.Len(s.Meters(), 4)
	assert.Contains(s.Describe(), "uncommitted")
	_, ok := s.Meter()
	assert.False(ok)
}

func TestCommitsToTheBeatMeter(t *testing.T) {
	m := NewModel(DefaultConfig())

	kids := m.Initial().Step(nil, fakeBeat{meter: threeFour, placed: true, anacrusis: 2})

	assert := assert.New(t)
	require.Len(t, kids, 1)
	s := kids[0]
	assert.True(s.Started())
	assert.Equal([]model.Meter{threeFour}, s.Meters())
	assert.InDelta(math.Log(0.25), s.Score(), 1e-9)
	assert.Contains(s.Describe(), "anacrusis of 2 tatums")

	// committing happens once
	again := s.Close(fakeBeat{meter: threeFour, placed: true})
	require.Len(t, again, 1)
	assert.Same(s, again[0])
	assert.Empty(s.Close(fakeBeat{meter: fourFour, placed: true}))
}

func TestUnknownMeterEndsBranch(t *testing.T) {
	m := NewModel(DefaultConfig())
	assert.Empty(t, m.Initial().Step(nil, fakeBeat{meter: fiveFour, placed: true}))
}

func TestDuplicates(t *testing.T) {
	m := NewModel(DefaultConfig())
	four := m.Initial().Step(nil, fakeBeat{meter: fourFour, placed: true})[0]
	fourLate := m.Initial().Step(nil, fakeBeat{meter: fourFour, placed: true, anacrusis: 1})[0]
	three := m.Initial().Step(nil, fakeBeat{meter: threeFour, placed: true})[0]

	assert := assert.New(t)
	assert.True(four.Duplicates(fourLate))
	assert.False(four.Duplicates(three))
	assert.False(four.Duplicates(m.Initial()))
	assert.NotEqual(four.Key(), fourLate.Key())
}
