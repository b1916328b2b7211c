package results

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jsphweid/metalign/constants"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/util"
)

var ErrNotFound = errors.New("run not found")

// Run is the outcome of aligning one piece.
type Run struct {
	ID        string
	Source    string
	CreatedAt time.Time
	Notes     int
	Batches   int
	Exhausted bool
	Results   []model.HypothesisResult
}

// Overview is the index entry of a stored run.
type Overview struct {
	ID        string
	Filename  string
	Source    string
	CreatedAt time.Time
	Notes     int
	Meter     string
	BestScore float64
	Exhausted bool
}

func NewRun(source string, notes, batches int, exhausted bool, results []model.HypothesisResult) Run {
	return Run{
		ID:        uuid.New().String(),
		Source:    source,
		CreatedAt: time.Now().UTC(),
		Notes:     notes,
		Batches:   batches,
		Exhausted: exhausted,
		Results:   results,
	}
}

func (r Run) overview() Overview {
	o := Overview{
		ID:        r.ID,
		Filename:  r.ID + constants.ResultExtension,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
		Notes:     r.Notes,
		Exhausted: r.Exhausted,
	}
	if len(r.Results) > 0 {
		o.Meter = r.Results[0].Meter
		o.BestScore = r.Results[0].Score
	}
	return o
}

// Save writes the run to its own file in dir and appends it to the index.
func Save(dir string, r Run) (Overview, error) {
	o := r.overview()
	if err := util.EnsureDir(dir); err != nil {
		return o, err
	}
	if err := util.CreateBinary(filepath.Join(dir, o.Filename), r); err != nil {
		return o, err
	}

	index, err := ReadIndex(dir)
	if err != nil {
		return o, err
	}
	index = append(index, o)
	if err := util.CreateBinary(indexPath(dir), index); err != nil {
		return o, err
	}
	slog.Debug("saved run", "id", r.ID, "source", r.Source, "runs", len(index))
	return o, nil
}

func Load(dir, id string) (Run, error) {
	path := filepath.Join(dir, id+constants.ResultExtension)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Run{}, fmt.Errorf("%w: %v", ErrNotFound, id)
	}
	return util.ReadBinary[Run](path)
}

// ReadIndex lists the stored runs in the order they were saved. A missing
// index is an empty one.
func ReadIndex(dir string) ([]Overview, error) {
	path := indexPath(dir)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return util.ReadBinary[[]Overview](path)
}

func indexPath(dir string) string {
	return filepath.Join(dir, constants.ResultsIndexFilename)
}

// FromHypotheses converts the best limit hypotheses into their serializable
// form. limit of 0 converts them all.
func FromHypotheses(hyps []*joint.Hypothesis, limit int) []model.HypothesisResult {
	if limit > 0 && len(hyps) > limit {
		hyps = hyps[:limit]
	}
	res := make([]model.HypothesisResult, 0, len(hyps))
	for i, h := range hyps {
		r := model.HypothesisResult{
			Rank:           i + 1,
			Score:          h.Score(),
			VoiceScore:     h.VoiceScore(),
			BeatScore:      h.BeatScore(),
			HierarchyScore: h.HierarchyScore(),
			Description:    h.Describe(),
			Tatums:         h.Tatums(),
		}
		if m, ok := h.Meter(); ok {
			r.Meter = m.String()
		}
		for _, v := range h.Voices() {
			ids := make([]int, len(v))
			for j, n := range v {
				ids[j] = n.ID
			}
			r.Voices = append(r.Voices, ids)
		}
		res = append(res, r)
	}
	return res
}
