package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ta-core/internal/feed"
	"ta-core/internal/model"
	"ta-core/internal/session"
	redisstore "ta-core/internal/store/redis"
	sqlitestore "ta-core/internal/store/sqlite"
)

var (
	importExchange string
	importSymbol   string
	importTF       int
	importDB       string
	importRedis    bool
	importResample []int
)

var importCmd = &cobra.Command{
	Use:   "import [file.csv]",
	Short: "Load a CSV of bars into the SQLite bar store",
	Long: `Load a CSV of closed bars into the SQLite store used for backfill. With
--redis the bars are also appended to their bar stream so a running service
consumes them.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importExchange, "exchange", "", "exchange (required)")
	importCmd.Flags().StringVar(&importSymbol, "symbol", "", "symbol (required)")
	importCmd.Flags().IntVar(&importTF, "tf", 60, "timeframe in seconds")
	importCmd.Flags().StringVar(&importDB, "db", "", "SQLite path (default sqlite.path from config)")
	importCmd.Flags().BoolVar(&importRedis, "redis", false, "also append the bars to their Redis bar stream")
	importCmd.Flags().IntSliceVar(&importResample, "resample", nil,
		"also store bars resampled to these timeframes (multiples of --tf); the trailing partial bucket is dropped")

	importCmd.MarkFlagRequired("exchange")
	importCmd.MarkFlagRequired("symbol")

	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if importTF <= 0 {
		return fmt.Errorf("--tf must be positive, got %d", importTF)
	}
	path := importDB
	if path == "" {
		path = cfg.SQLite.Path
	}
	if path == "" {
		return fmt.Errorf("no SQLite path: set --db or sqlite.path")
	}

	bars, err := feed.LoadFile(args[0])
	if err != nil {
		return err
	}
	tfBars := feed.ToTFBars(bars, importExchange, importSymbol, importTF)
	resampled, err := resample(tfBars, importTF, importResample, log)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path}, log)
	if err != nil {
		return err
	}
	defer w.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	all := append(tfBars, resampled...)
	if err := w.WriteBars(ctx, all); err != nil {
		return fmt.Errorf("writing bars: %w", err)
	}
	log.Info("imported bars", zap.String("db", path), zap.Int("bars", len(tfBars)), zap.Int("resampled", len(resampled)),
		zap.String("exchange", importExchange), zap.String("symbol", importSymbol), zap.Int("tf", importTF))

	if !importRedis || len(tfBars) == 0 {
		return nil
	}
	rw, err := redisstore.New(redisstore.WriterConfig{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxFailures:  cfg.Redis.MaxFailures,
		ResetTimeout: cfg.Redis.ResetTimeout,
	}, log)
	if err != nil {
		return err
	}
	defer rw.Close()
	if err := rw.WriteBars(ctx, all); err != nil {
		return fmt.Errorf("publishing bars: %w", err)
	}
	log.Info("published bars", zap.String("stream", tfBars[0].StreamKey()), zap.Int("bars", len(all)))
	return nil
}

// resample rolls base bars up into each target timeframe. Only closed
// buckets are returned.
func resample(bars []model.TFBar, base int, tfs []int, log *zap.Logger) ([]model.TFBar, error) {
	if len(tfs) == 0 {
		return nil, nil
	}
	for _, tf := range tfs {
		if tf <= base || tf%base != 0 {
			return nil, fmt.Errorf("--resample %d must be a larger multiple of --tf %d", tf, base)
		}
	}
	r := session.NewResampler(tfs, log)
	var out []model.TFBar
	for _, b := range bars {
		r.Process(b, func(tb model.TFBar) { out = append(out, tb) })
	}
	return out, nil
}
