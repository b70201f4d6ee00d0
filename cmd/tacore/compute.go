package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ta-core/internal/batch"
	"ta-core/internal/config"
	"ta-core/internal/feed"
	"ta-core/internal/indicator"
)

var (
	computeIndicators string
	computeFormat     string
	computeOut        string
	computePrecision  int
)

var computeCmd = &cobra.Command{
	Use:   "compute [file.csv]",
	Short: "Compute indicators over a CSV of bars",
	Long: `Load bars from a CSV file and compute every indicator once over the whole
history. Indicators come from --indicators (e.g. "SMA:20,MACD:12:26:9") or
from engine.indicators in the config.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompute,
}

func init() {
	computeCmd.Flags().StringVarP(&computeIndicators, "indicators", "i", "", "comma-separated indicator specs")
	computeCmd.Flags().StringVarP(&computeFormat, "format", "f", "json", "output format: json, csv or yaml")
	computeCmd.Flags().StringVarP(&computeOut, "out", "o", "", "output file (default stdout)")
	computeCmd.Flags().IntVar(&computePrecision, "precision", -1, "decimals in csv output (-1 for shortest exact)")
	rootCmd.AddCommand(computeCmd)
}

// indicatorSpecs resolves the flag value, falling back to the config list.
func indicatorSpecs(flag string, cfg *config.Config) ([]indicator.IndicatorConfig, error) {
	list := flag
	if list == "" {
		list = strings.Join(cfg.Engine.Indicators, ",")
	}
	specs, err := indicator.ParseSpecs(list)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no indicators given")
	}
	return specs, nil
}

func runCompute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	specs, err := indicatorSpecs(computeIndicators, cfg)
	if err != nil {
		return err
	}
	bars, err := feed.LoadFile(args[0])
	if err != nil {
		return err
	}

	out := make([]batch.Series, 0, len(specs))
	for _, spec := range specs {
		s, err := batch.Compute(spec, bars)
		if err != nil {
			return fmt.Errorf("%s: %w", spec, err)
		}
		out = append(out, s)
	}

	var w io.Writer = cmd.OutOrStdout()
	if computeOut != "" {
		f, err := os.Create(computeOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return writeSeries(w, computeFormat, bars, out)
}
