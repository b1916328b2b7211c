package beat

// Config holds the constants of the beat model. Times are microseconds.
type Config struct {
	// Tempo bounds as beat lengths: MinBeatLength is the fastest tempo.
	MinBeatLength int64 `yaml:"min_beat_length" json:"min_beat_length" validate:"gt=0"`
	MaxBeatLength int64 `yaml:"max_beat_length" json:"max_beat_length" validate:"gtfield=MinBeatLength"`

	// Relative change of the beat length from one bar to the next.
	TempoChangeMean float64 `yaml:"tempo_change_mean" json:"tempo_change_mean"`
	TempoChangeStd  float64 `yaml:"tempo_change_std" json:"tempo_change_std" validate:"gt=0"`

	// Coefficient of variation of inter-pulse gaps, per level.
	BeatSpacingStd    float64 `yaml:"beat_spacing_std" json:"beat_spacing_std" validate:"gt=0"`
	SubBeatSpacingStd float64 `yaml:"sub_beat_spacing_std" json:"sub_beat_spacing_std" validate:"gt=0"`
	TatumSpacingStd   float64 `yaml:"tatum_spacing_std" json:"tatum_spacing_std" validate:"gt=0"`
	AcceptableCV      float64 `yaml:"acceptable_cv" json:"acceptable_cv" validate:"gte=0"`
	EvennessFloor     float64 `yaml:"evenness_floor" json:"evenness_floor" validate:"gt=0,lte=1"`

	NoteDeviationStd float64 `yaml:"note_deviation_std" json:"note_deviation_std" validate:"gt=0"`

	// EmptyNoteFloor is charged per waiting note while no bar is placed.
	EmptyNoteFloor float64 `yaml:"empty_note_floor" json:"empty_note_floor" validate:"lte=0"`

	// Magnetism is how far a boundary moves toward nearby onsets.
	Magnetism float64 `yaml:"magnetism" json:"magnetism" validate:"gte=0,lte=1"`

	// BoundaryWindow is the fraction of a part's width around an estimated
	// boundary in which note onsets become boundary candidates.
	BoundaryWindow float64 `yaml:"boundary_window" json:"boundary_window" validate:"gte=0,lt=0.5"`

	DownbeatTolerance int64   `yaml:"downbeat_tolerance" json:"downbeat_tolerance" validate:"gte=0"`
	RestPrior         float64 `yaml:"rest_prior" json:"rest_prior" validate:"gt=0,lte=1"`
	DefaultNotePrior  float64 `yaml:"default_note_prior" json:"default_note_prior" validate:"gt=0,lte=1"`

	// Duplicate detection: relative tempo difference and last pulse distance.
	TempoTolerance float64 `yaml:"tempo_tolerance" json:"tempo_tolerance" validate:"gte=0"`
	PulseTolerance int64   `yaml:"pulse_tolerance" json:"pulse_tolerance" validate:"gte=0"`

	// MaxAnacrusis allows the first downbeat to start this long after the
	// first note. 0 disables pickups.
	MaxAnacrusis int64 `yaml:"max_anacrusis" json:"max_anacrusis" validate:"gte=0"`

	// MaxLattices optionally bounds the alternatives kept per subdivided
	// span, ranked by note deviation only. 0, the default, keeps the full
	// cross product.
	MaxLattices int `yaml:"max_lattices" json:"max_lattices" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		MinBeatLength:     200_000,
		MaxBeatLength:     1_500_000,
		TempoChangeMean:   0,
		TempoChangeStd:    0.1,
		BeatSpacingStd:    0.1,
		SubBeatSpacingStd: 0.15,
		TatumSpacingStd:   0.2,
		AcceptableCV:      0.02,
		EvennessFloor:     1,
		NoteDeviationStd:  30_000,
		EmptyNoteFloor:    -0.5,
		Magnetism:         0.5,
		BoundaryWindow:    0.2,
		DownbeatTolerance: 50_000,
		RestPrior:         0.2,
		DefaultNotePrior:  0.5,
		TempoTolerance:    0.02,
		PulseTolerance:    20_000,
		MaxAnacrusis:      0,
		MaxLattices:       0,
	}
}
