package beat

import "github.com/jsphweid/metalign/model"

// Priors supplies the probability that a note falls on a downbeat.
type Priors interface {
	Prior(n model.NoteEvent) (float64, bool)
}

// Model holds the configuration shared by every beat state of one search.
type Model struct {
	cfg    Config
	priors Priors
}

type Option func(*Model)

func WithPriors(p Priors) Option {
	return func(m *Model) {
		m.priors = p
	}
}

func NewModel(cfg Config, opts ...Option) *Model {
	m := &Model{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Model) Config() Config {
	return m.cfg
}

// Initial returns the empty state every search starts from.
func (m *Model) Initial() *State {
	s := &State{model: m, phase: Empty}
	s.key = s.fingerprint()
	return s
}
