package model

import (
	"context"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the engine and services from concrete storage
// implementations (Redis, SQLite).

// BarWriter persists TF bars.
type BarWriter interface {
	// WriteBars writes a batch of bars in one transaction or pipeline.
	WriteBars(ctx context.Context, bars []TFBar) error

	// Close releases underlying resources.
	Close() error
}

// BarReader reads TF bars for backfill and replay.
type BarReader interface {
	// ReadBars reads bars for a specific instrument and TF with TS > afterTS (unix ms).
	ReadBars(ctx context.Context, exchange, symbol string, tf int, afterTS int64) ([]TFBar, error)

	// ReadAllBars reads all bars for a given timeframe ordered by TS.
	ReadAllBars(ctx context.Context, tf int, afterTS int64) ([]TFBar, error)

	// Close releases underlying resources.
	Close() error
}

// ResultWriter publishes indicator results.
type ResultWriter interface {
	// WriteIndicatorBatch writes multiple indicator results in a single batch.
	WriteIndicatorBatch(ctx context.Context, results []IndicatorResult)

	// Close releases underlying resources.
	Close() error
}

// BarConsumer consumes TF bars from a stream (e.g. Redis Streams).
type BarConsumer interface {
	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ConsumeBars reads TF bars via consumer groups and hands each to sink.
	// Blocks until ctx is cancelled.
	ConsumeBars(ctx context.Context, streams []string, sink func(TFBar)) error

	// ReplayFromID reads all messages from a stream starting at a given ID.
	ReplayFromID(ctx context.Context, stream, startID string, sink func(TFBar)) (string, error)

	// Close releases underlying resources.
	Close() error
}
