package voice

type Config struct {
	// MaxVoices bounds how many voices a partition may open.
	MaxVoices int `yaml:"max_voices" json:"max_voices" validate:"gte=1"`

	// BranchFactor is how many of the nearest existing voices a note may join.
	BranchFactor int `yaml:"branch_factor" json:"branch_factor" validate:"gte=1"`

	// MaxBranches bounds the successors of one batch. 0 keeps them all.
	MaxBranches int `yaml:"max_branches" json:"max_branches" validate:"gte=0"`

	// PitchJumpStd is the spread, in semitones, of the interval between
	// consecutive notes of one voice.
	PitchJumpStd float64 `yaml:"pitch_jump_std" json:"pitch_jump_std" validate:"gt=0"`

	NewVoiceLogProb float64 `yaml:"new_voice_log_prob" json:"new_voice_log_prob" validate:"lte=0"`

	// OverlapLogProb is charged when a note joins a voice that is still
	// sounding longer than GapTolerance past the note's onset.
	OverlapLogProb float64 `yaml:"overlap_log_prob" json:"overlap_log_prob" validate:"lte=0"`
	GapTolerance   int64   `yaml:"gap_tolerance" json:"gap_tolerance" validate:"gte=0"`

	// MinDuration hides shorter notes (grace notes) from the beat model. 0
	// disables the filter.
	MinDuration int64 `yaml:"min_duration" json:"min_duration" validate:"gte=0"`

	// UseHints routes notes carrying a voice hint to the voice opened by the
	// same hint.
	UseHints bool `yaml:"use_hints" json:"use_hints"`
}

func DefaultConfig() Config {
	return Config{
		MaxVoices:       4,
		BranchFactor:    2,
		MaxBranches:     16,
		PitchJumpStd:    7,
		NewVoiceLogProb: -2,
		OverlapLogProb:  -3,
		GapTolerance:    50_000,
		MinDuration:     0,
		UseHints:        true,
	}
}
