package voice

import (
	"testing"

	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(id int, onset int64, pitch uint8) model.NoteEvent {
	return model.NoteEvent{ID: id, Onset: onset, Offset: onset + 200_000, Pitch: pitch, Voice: model.NoVoice}
}

func TestFirstNoteOpensAVoice(t *testing.T) {
	cfg := DefaultConfig()
	m := NewModel(cfg)

	kids := m.Initial().Step(model.Batch{note(1, 0, 60)})

	assert := assert.New(t)
	require.Len(t, kids, 1)
	assert.Equal(cfg.NewVoiceLogProb, kids[0].Score())
	assert.Equal([][]model.NoteEvent{{note(1, 0, 60)}}, kids[0].Voices())
	assert.True(kids[0].Started())
	assert.False(kids[0].Pending())
}

func TestChordBranchesIntoJoinAndOpen(t *testing.T) {
	cfg := DefaultConfig()
	m := NewModel(cfg)

	kids := m.Initial().Step(model.Batch{note(1, 0, 60), note(2, 0, 72)})

	assert := assert.New(t)
	require.Len(t, kids, 2)
	counts := map[int]float64{}
	for _, k := range kids {
		counts[len(k.Voices())] = k.Score()
	}
	assert.InDelta(2*cfg.NewVoiceLogProb, counts[2], 1e-9)
	joined := cfg.NewVoiceLogProb + cfg.OverlapLogProb + util.LogGaussian(-12, 0, cfg.PitchJumpStd)
	assert.InDelta(joined, counts[1], 1e-9)
}

func TestMaxVoicesForcesJoin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxVoices = 1
	m := NewModel(cfg)

	states := m.Initial().Step(model.Batch{note(1, 0, 60)})
	states = states[0].Step(model.Batch{note(2, 300_000, 62)})

	assert := assert.New(t)
	require.Len(t, states, 1)
	require.Len(t, states[0].Voices(), 1)
	assert.Len(states[0].Voices()[0], 2)
}

func TestBranchFactorLimitsJoins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BranchFactor = 1
	cfg.MaxVoices = 3
	m := NewModel(cfg)

	s := m.Initial().open(note(1, 0, 48)).open(note(2, 0, 72))
	kids := s.Step(model.Batch{note(3, 300_000, 70)})

	assert := assert.New(t)
	require.Len(t, kids, 2)
	for _, k := range kids {
		for _, v := range k.Voices() {
			if len(v) == 2 {
				assert.Equal(uint8(72), v[0].Pitch)
			}
		}
	}
}

func TestHintsRouteNotes(t *testing.T) {
	m := NewModel(DefaultConfig())
	a := note(1, 0, 60)
	a.Voice = 0
	b := note(2, 0, 64)
	b.Voice = 1
	c := note(3, 300_000, 61)
	c.Voice = 1

	states := m.Initial().Step(model.Batch{a, b})
	require.Len(t, states, 1)
	states = states[0].Step(model.Batch{c})
	require.Len(t, states, 1)

	assert := assert.New(t)
	for _, v := range states[0].Voices() {
		if v[0].ID == 2 {
			assert.Len(v, 2)
		} else {
			assert.Len(v, 1)
		}
	}
}

func TestMaxBranchesKeepsBest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBranches = 2
	cfg.MaxVoices = 8
	cfg.BranchFactor = 8
	m := NewModel(cfg)

	kids := m.Initial().Step(model.Batch{note(1, 0, 60), note(2, 0, 64), note(3, 0, 67)})

	assert := assert.New(t)
	assert.Len(kids, 2)
	assert.GreaterOrEqual(kids[0].Score(), kids[1].Score())
}

func TestFilterHidesGraceNotes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDuration = 100_000
	s := NewModel(cfg).Initial()

	grace := model.NoteEvent{ID: 1, Onset: 0, Offset: 50_000, Pitch: 62}
	open := model.NoteEvent{ID: 2, Onset: 0, Offset: model.OpenOffset, Pitch: 60}
	long := note(3, 0, 67)

	filtered := s.Filter(model.Batch{grace, open, long})
	assert.Equal(t, model.Batch{open, long}, filtered)

	unfiltered := NewModel(DefaultConfig()).Initial().Filter(model.Batch{grace})
	assert.Equal(t, model.Batch{grace}, unfiltered)
}

func TestDuplicatesCompareLastNotes(t *testing.T) {
	m := NewModel(DefaultConfig())
	base := m.Initial().open(note(1, 0, 60)).open(note(2, 0, 64))
	a := base.join(0, note(3, 300_000, 62)).join(1, note(4, 300_000, 65))
	b := base.join(1, note(3, 300_000, 62)).join(0, note(4, 300_000, 65))
	c := base.join(0, note(3, 300_000, 62))

	assert := assert.New(t)
	assert.True(a.Duplicates(b))
	assert.NotEqual(a.PartitionKey(), b.PartitionKey())
	assert.False(a.Duplicates(c))
}

func TestPartitionKeyIgnoresVoiceOrder(t *testing.T) {
	m := NewModel(DefaultConfig())
	a := m.Initial().open(note(1, 0, 60)).open(note(2, 0, 64))
	b := m.Initial().open(note(2, 0, 64)).open(note(1, 0, 60))
	assert.Equal(t, a.PartitionKey(), b.PartitionKey())
}

func TestStepDoesNotChangeParent(t *testing.T) {
	m := NewModel(DefaultConfig())
	s := m.Initial().open(note(1, 0, 60))
	key := s.Key()

	s.Step(model.Batch{note(2, 300_000, 62), note(3, 300_000, 67)})

	assert := assert.New(t)
	assert.Equal(key, s.Key())
	assert.Len(s.Voices(), 1)
	assert.Len(s.Voices()[0], 1)
}
