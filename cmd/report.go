package cmd

import (
	"fmt"

	"github.com/jsphweid/metalign/constants"
	"github.com/jsphweid/metalign/results"
	"github.com/jsphweid/metalign/util"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarises stored runs",
	Long:  `Summarises every run saved under OUT_PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := results.ReadIndex(constants.GetOutDir())
		if err != nil {
			return err
		}
		printReport(summarise(index))
		return nil
	},
}

type runsReport struct {
	numRuns      int
	numExhausted int
	numNotes     []int
	meters       map[string]int
	bestScores   []float64
	notesPerRun  float64
	avgBestScore float64
}

func summarise(index []results.Overview) runsReport {
	r := runsReport{meters: make(map[string]int)}
	for _, o := range index {
		r.numRuns++
		if o.Exhausted {
			r.numExhausted++
		}
		r.numNotes = append(r.numNotes, o.Notes)
		if o.Meter == "" {
			r.meters["none"]++
			continue
		}
		r.meters[o.Meter]++
		r.bestScores = append(r.bestScores, o.BestScore)
	}
	if r.numRuns > 0 {
		r.notesPerRun = float64(util.Sum(r.numNotes)) / float64(r.numRuns)
	}
	if len(r.bestScores) > 0 {
		r.avgBestScore = stat.Mean(r.bestScores, nil)
	}
	return r
}

func printReport(r runsReport) {
	fmt.Printf("runs: %v\n", r.numRuns)
	fmt.Printf("exhausted: %v\n", r.numExhausted)
	fmt.Printf("notes per run: %.1f\n", r.notesPerRun)
	fmt.Printf("average best score: %.3f\n", r.avgBestScore)
	for _, meter := range util.GetKeys(r.meters) {
		fmt.Printf("meter %v: %v\n", meter, r.meters[meter])
	}
}
