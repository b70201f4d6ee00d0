package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ta-core/internal/batch"
	"ta-core/internal/feed"
)

var (
	verifyIndicators string
	verifyTolerance  float64
)

var verifyCmd = &cobra.Command{
	Use:   "verify [file.csv]",
	Short: "Check that batch and streaming results agree on a CSV of bars",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyIndicators, "indicators", "i", "", "comma-separated indicator specs")
	verifyCmd.Flags().Float64Var(&verifyTolerance, "tol", 1e-9, "absolute tolerance")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	specs, err := indicatorSpecs(verifyIndicators, cfg)
	if err != nil {
		return err
	}
	bars, err := feed.LoadFile(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, spec := range specs {
		if err := batch.Verify(spec, bars, verifyTolerance); err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %-20s %v\n", spec.Key(), err)
			continue
		}
		fmt.Fprintf(out, "ok   %-20s %d bars\n", spec.Key(), len(bars))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d indicators disagree", failed, len(specs))
	}
	return nil
}
