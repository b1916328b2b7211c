package cmd

import (
	"fmt"

	"github.com/jsphweid/metalign/constants"
	"github.com/jsphweid/metalign/model"
	"github.com/jsphweid/metalign/results"
	"github.com/spf13/cobra"
)

var inspectTatums bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectTatums, "tatums", false, "print every tatum")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <run-id>",
	Short: "Inspects a stored run",
	Long:  `Prints the hypotheses of a run saved with align --save.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := results.Load(constants.GetOutDir(), args[0])
		if err != nil {
			return err
		}
		printRun(run)
		if inspectTatums {
			for _, h := range run.Results {
				printTatums(h)
			}
		}
		return nil
	},
}

func printTatums(h model.HypothesisResult) {
	fmt.Printf("hypothesis #%d\n", h.Rank)
	for i, v := range h.Voices {
		fmt.Printf("  voice %d: notes %v\n", i, v)
	}
	for _, t := range h.Tatums {
		if t.Kind == model.Downbeat {
			fmt.Println("  |")
		}
		fmt.Printf("  %10.3fs %v\n", float64(t.Time)/1e6, t.Kind)
	}
}
