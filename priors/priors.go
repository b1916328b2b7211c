package priors

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/jsphweid/metalign/model"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("priors not found")

// Entry is the probability that the notes starting at Onset fall on a
// downbeat.
type Entry struct {
	Onset int64   `yaml:"onset" json:"onset" validate:"gte=0"`
	Prior float64 `yaml:"prior" json:"prior" validate:"gt=0,lte=1"`
}

// Table holds the downbeat priors of one piece. It satisfies beat.Priors.
type Table struct {
	Piece   string  `yaml:"piece" json:"piece" validate:"required"`
	Entries []Entry `yaml:"priors" json:"priors" validate:"dive"`

	byOnset map[int64]float64
}

func NewTable(piece string, entries []Entry) (*Table, error) {
	t := &Table{Piece: piece, Entries: entries}
	if err := t.index(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) index() error {
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("invalid priors for %q: %w", t.Piece, err)
	}
	sort.Slice(t.Entries, func(i, j int) bool {
		return t.Entries[i].Onset < t.Entries[j].Onset
	})
	t.byOnset = make(map[int64]float64, len(t.Entries))
	for _, e := range t.Entries {
		if _, ok := t.byOnset[e.Onset]; ok {
			return fmt.Errorf("invalid priors for %q: onset %d listed twice", t.Piece, e.Onset)
		}
		t.byOnset[e.Onset] = e.Prior
	}
	return nil
}

func (t *Table) Prior(n model.NoteEvent) (float64, bool) {
	p, ok := t.byOnset[n.Onset]
	return p, ok
}

func (t *Table) Len() int {
	return len(t.Entries)
}

// LoadFile reads a YAML (or JSON) priors table.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading priors %v: %w", path, err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing priors %v: %w", path, err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}
