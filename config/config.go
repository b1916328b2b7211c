package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jsphweid/metalign/beat"
	"github.com/jsphweid/metalign/hierarchy"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/voice"
	"gopkg.in/yaml.v3"
)

const (
	EnvGlobalCap = "METALIGN_GLOBAL_CAP"
	EnvVoiceCap  = "METALIGN_VOICE_CAP"
	EnvWorkers   = "METALIGN_WORKERS"
)

// SearchConfig is everything one search needs besides its input.
type SearchConfig struct {
	Beam      joint.BeamConfig `yaml:"beam" json:"beam"`
	Voice     voice.Config     `yaml:"voice" json:"voice"`
	Beat      beat.Config      `yaml:"beat" json:"beat"`
	Hierarchy hierarchy.Config `yaml:"hierarchy" json:"hierarchy"`
}

func Default() SearchConfig {
	return SearchConfig{
		Beam:      joint.DefaultBeamConfig(),
		Voice:     voice.DefaultConfig(),
		Beat:      beat.DefaultConfig(),
		Hierarchy: hierarchy.DefaultConfig(),
	}
}

// Load builds a config from defaults, then the YAML file at path (if path is
// not empty), then the environment.
func Load(path string) (SearchConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %v: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %v: %w", path, err)
		}
		slog.Debug("loaded config file", "path", path)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *SearchConfig) error {
	vars := []struct {
		name   string
		target *int
	}{
		{EnvGlobalCap, &cfg.Beam.GlobalCap},
		{EnvVoiceCap, &cfg.Beam.VoiceCap},
		{EnvWorkers, &cfg.Beam.Workers},
	}
	for _, v := range vars {
		raw, ok := os.LookupEnv(v.name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%v must be an integer, got %q", v.name, raw)
		}
		*v.target = n
	}
	return nil
}

func (c SearchConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %v (%d problems)", verrs[0].Namespace(), len(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
