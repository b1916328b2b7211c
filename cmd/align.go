package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jsphweid/metalign/batch"
	"github.com/jsphweid/metalign/beat"
	"github.com/jsphweid/metalign/constants"
	"github.com/jsphweid/metalign/joint"
	"github.com/jsphweid/metalign/midi"
	"github.com/jsphweid/metalign/priors"
	"github.com/jsphweid/metalign/results"
	"github.com/jsphweid/metalign/sample"
	"github.com/jsphweid/metalign/util"
	"github.com/spf13/cobra"
)

type alignOptions struct {
	maxFiles       int
	fromTick       uint64
	maxNotes       int
	top            int
	save           bool
	priorsPath     string
	dynamoEndpoint string
	dynamoRegion   string
	dynamoTable    string
	channelHints   bool
}

var alignOpts alignOptions

func init() {
	f := alignCmd.Flags()
	f.IntVar(&alignOpts.maxFiles, "max-files", 0, "stop after this many files (0 for all)")
	f.Uint64Var(&alignOpts.fromTick, "from-tick", 0, "start each file at this tick")
	f.IntVar(&alignOpts.maxNotes, "max-notes", 0, "keep at most this many note events per track (0 for all)")
	f.IntVar(&alignOpts.top, "top", constants.DefaultTopHypotheses, "hypotheses to print and save")
	f.BoolVar(&alignOpts.save, "save", false, "store the results under OUT_PATH")
	f.StringVar(&alignOpts.priorsPath, "priors", "", "YAML downbeat priors for a single file")
	f.StringVar(&alignOpts.dynamoEndpoint, "dynamo-endpoint", "", "load downbeat priors per file from this DynamoDB endpoint")
	f.StringVar(&alignOpts.dynamoRegion, "dynamo-region", "localhost", "DynamoDB region")
	f.StringVar(&alignOpts.dynamoTable, "dynamo-table", priors.DefaultTable, "DynamoDB priors table")
	f.BoolVar(&alignOpts.channelHints, "channel-hints", false, "use MIDI channels as voice hints")
	rootCmd.AddCommand(alignCmd)
}

var alignCmd = &cobra.Command{
	Use:   "align [path]",
	Short: "Aligns MIDI files",
	Long:  `Aligns a MIDI file, or every MIDI file under a directory (MEDIA_PATH by default).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			dir, err := constants.GetMediaDir()
			if err != nil {
				return err
			}
			path = dir
		}
		return align(cmd.Context(), path, alignOpts)
	},
}

func align(ctx context.Context, path string, opts alignOptions) error {
	paths, err := util.GatherAllMidiPaths(path, opts.maxFiles)
	if err != nil {
		return err
	}
	if opts.priorsPath != "" && len(paths) > 1 {
		return fmt.Errorf("--priors applies to a single file, found %d", len(paths))
	}

	var store *priors.DynamoStore
	if opts.dynamoEndpoint != "" {
		client, err := priors.NewLocalClient(opts.dynamoEndpoint, opts.dynamoRegion)
		if err != nil {
			return err
		}
		store = priors.NewDynamoStore(client, opts.dynamoTable)
	}

	failed := 0
	for i, p := range paths {
		slog.Info("aligning", "file", p, "n", i+1, "of", len(paths))
		table, err := loadPriors(ctx, p, opts, store)
		if err != nil {
			return err
		}
		run, err := alignFile(ctx, p, opts, table)
		if err != nil {
			slog.Warn("skipping file", "file", p, "err", err)
			failed++
			continue
		}
		printRun(run)
		if opts.save {
			o, err := results.Save(constants.GetOutDir(), run)
			if err != nil {
				return err
			}
			slog.Info("saved run", "id", o.ID, "file", o.Filename)
		}
	}
	if failed > 0 {
		slog.Warn("some files were skipped", "skipped", failed, "total", len(paths))
	}
	return nil
}

func loadPriors(ctx context.Context, path string, opts alignOptions, store *priors.DynamoStore) (beat.Priors, error) {
	if opts.priorsPath != "" {
		table, err := priors.LoadFile(opts.priorsPath)
		if err != nil {
			return nil, err
		}
		return table, nil
	}
	if store == nil {
		return nil, nil
	}
	table, err := store.Load(ctx, filepath.Base(path))
	if errors.Is(err, priors.ErrNotFound) {
		slog.Debug("no priors stored", "file", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

func alignFile(ctx context.Context, path string, opts alignOptions, p beat.Priors) (results.Run, error) {
	mf, err := midi.ReadMidiFile(path)
	if err != nil {
		return results.Run{}, err
	}
	if opts.fromTick > 0 || opts.maxNotes > 0 {
		mf = sample.Excerpt(mf, opts.fromTick, opts.maxNotes)
	}
	notes, err := midi.GetNotes(mf, midi.ParseOptions{ChannelHints: opts.channelHints})
	if err != nil {
		return results.Run{}, err
	}
	batches := batch.FromNotes(notes)

	c := NewSearch(searchConfig, p, joint.WithLogger(slog.Default().With("file", filepath.Base(path))))
	exhausted, err := runSearch(ctx, c, batches)
	if err != nil {
		return results.Run{}, err
	}
	return results.NewRun(path, len(notes), len(batches), exhausted, results.FromHypotheses(c.Hypotheses(), opts.top)), nil
}

func printRun(r results.Run) {
	fmt.Printf("%v: %d notes in %d batches", r.Source, r.Notes, r.Batches)
	if r.Exhausted {
		fmt.Print(" (beam exhausted)")
	}
	fmt.Println()
	for _, h := range r.Results {
		fmt.Printf("  #%d score %.3f (voice %.3f, beat %.3f, meter %.3f) meter %v, %d voices, %d tatums\n",
			h.Rank, h.Score, h.VoiceScore, h.BeatScore, h.HierarchyScore, h.Meter, len(h.Voices), len(h.Tatums))
		fmt.Printf("     %v\n", h.Description)
	}
}
