package results

import (
	"errors"
	"testing"

	"github.com/jsphweid/metalign/beat"
	"github.com/jsphweid/metalign/hierarchy"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []model.HypothesisResult {
	return []model.HypothesisResult{
		{Rank: 1, Score: -3.5, Meter: "4/2/2", Voices: [][]int{{0, 2}, {1}}, Tatums: []model.Tatum{{Time: 0, Kind: model.Downbeat}}},
		{Rank: 2, Score: -4, Meter: "3/2/2"},
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	run := NewRun("bach.mid", 12, 9, false, sampleResults())

	o, err := Save(dir, run)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(run.ID+".dat", o.Filename)
	assert.Equal("4/2/2", o.Meter)
	assert.Equal(-3.5, o.BestScore)

	loaded, err := Load(dir, run.ID)
	require.NoError(t, err)
	assert.Equal(run.Source, loaded.Source)
	assert.Equal(run.Results, loaded.Results)
	assert.True(run.CreatedAt.Equal(loaded.CreatedAt))
}

func TestIndexKeepsSaveOrder(t *testing.T) {
	dir := t.TempDir()

	index, err := ReadIndex(dir)
	require.NoError(t, err)
	assert.Empty(t, index)

	first := NewRun("a.mid", 1, 1, false, nil)
	second := NewRun("b.mid", 2, 2, true, sampleResults())
	_, err = Save(dir, first)
	require.NoError(t, err)
	_, err = Save(dir, second)
	require.NoError(t, err)

	index, err = ReadIndex(dir)
	require.NoError(t, err)

	assert := assert.New(t)
	require.Len(t, index, 2)
	assert.Equal(first.ID, index[0].ID)
	assert.Equal("", index[0].Meter)
	assert.Equal(second.ID, index[1].ID)
	assert.True(index[1].Exhausted)
}

func TestLoadMissingRun(t *testing.T) {
	_, err := Load(t.TempDir(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFromHypotheses(t *testing.T) {
	initial := joint.NewHypothesis(
		voice.NewModel(voice.DefaultConfig()).Initial(),
		beat.NewModel(beat.DefaultConfig()).Initial(),
		hierarchy.NewModel(hierarchy.DefaultConfig()).Initial(),
	)
	hyps := []*joint.Hypothesis{initial, initial, initial}

	assert := assert.New(t)
	res := FromHypotheses(hyps, 2)
	require.Len(t, res, 2)
	assert.Equal(1, res[0].Rank)
	assert.Equal(2, res[1].Rank)
	assert.Equal(0.0, res[0].Score)
	assert.Equal("", res[0].Meter)
	assert.Empty(res[0].Voices)
	assert.Contains(res[0].Description, "uncommitted")

	assert.Len(FromHypotheses(hyps, 0), 3)
}
