package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jsphweid/metalign/batch"
	"github.com/jsphweid/metalign/beat"
	"github.com/jsphweid/metalign/config"
	"github.com/jsphweid/metalign/hierarchy"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/voice"
)

// NewSearch builds a coordinator from the sub-models described by cfg.
// priors may be nil.
func NewSearch(cfg config.SearchConfig, priors beat.Priors, opts ...joint.Option) *joint.Coordinator {
	var beatOpts []beat.Option
	if priors != nil {
		beatOpts = append(beatOpts, beat.WithPriors(priors))
	}
	return joint.NewCoordinator(
		voice.NewModel(cfg.Voice).Initial(),
		beat.NewModel(cfg.Beat, beatOpts...).Initial(),
		hierarchy.NewModel(cfg.Hierarchy).Initial(),
		cfg.Beam,
		opts...,
	)
}

// runSearch feeds every batch to c and closes it. An exhausted beam stops
// the feed; the hypotheses from before the failing batch are then closed.
func runSearch(ctx context.Context, c *joint.Coordinator, batches []model.Batch) (exhausted bool, err error) {
	if err := batch.Validate(batches); err != nil {
		return false, err
	}
	for i, b := range batches {
		err := c.Step(ctx, b)
		if errors.Is(err, joint.ErrBeamExhausted) {
			slog.Warn("stopping early", "batch", i, "of", len(batches), "onset", b[0].Onset)
			exhausted = true
			break
		}
		if err != nil {
			return false, fmt.Errorf("batch %d: %w", i, err)
		}
	}
	if err := c.Close(ctx); err != nil {
		if errors.Is(err, joint.ErrBeamExhausted) {
			return true, nil
		}
		return exhausted, fmt.Errorf("closing: %w", err)
	}
	return exhausted, nil
}
