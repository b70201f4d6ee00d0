package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unsafe"

	"ta-core/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultLatestTTL = 30 * time.Minute
	flushChunk       = 500
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures  int           // consecutive failures before the breaker opens (default 5)
	ResetTimeout time.Duration // breaker open duration before a probe (default 10s)
	BacklogSize  int           // results held while the breaker is open (default 10000)
}

// Writer publishes indicator results and bars to Redis. Every pipeline runs
// through a circuit breaker; results rejected while it is open wait in a
// bounded backlog and are flushed after the next successful write.
type Writer struct {
	client  *goredis.Client
	cb      *CircuitBreaker
	backlog *backlog
	log     *zap.Logger

	// OnWrite, when set, observes the latency of every executed pipeline.
	OnWrite func(time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker returns the circuit breaker guarding writes.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig, log *zap.Logger) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := NewWithClient(client, cfg, log)
	w.log.Info("redis writer connected", zap.String("addr", cfg.Addr))
	return w, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg WriterConfig, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = 10 * time.Second
	}
	return &Writer{
		client:  client,
		cb:      NewCircuitBreaker(maxFailures, reset),
		backlog: newBacklog(cfg.BacklogSize),
		log:     log.Named("redis-writer"),
	}
}

// WriteIndicatorBatch writes ready results in a single pipeline: XADD to the
// result stream, SET of the latest value and PUBLISH for live subscribers.
// Results that are not ready are skipped.
func (w *Writer) WriteIndicatorBatch(ctx context.Context, results []model.IndicatorResult) {
	ready := make([]model.IndicatorResult, 0, len(results))
	for i := range results {
		if results[i].Ready {
			ready = append(ready, results[i])
		}
	}
	if len(ready) == 0 {
		return
	}

	err := w.cb.Execute(func() error { return w.execResults(ctx, ready) })
	if err != nil {
		w.backlog.push(ready)
		if err != ErrCircuitOpen {
			w.log.Warn("indicator batch pipeline failed",
				zap.Int("results", len(ready)), zap.Int("backlog", w.backlog.len()), zap.Error(err))
		}
		return
	}
	w.flushBacklog(ctx)
}

// Pending returns the number of results waiting in the backlog.
func (w *Writer) Pending() int { return w.backlog.len() }

// Dropped returns how many results the backlog has discarded.
func (w *Writer) Dropped() uint64 { return w.backlog.droppedCount() }

func (w *Writer) flushBacklog(ctx context.Context) {
	for w.backlog.len() > 0 {
		chunk := w.backlog.take(flushChunk)
		if err := w.cb.Execute(func() error { return w.execResults(ctx, chunk) }); err != nil {
			w.backlog.requeue(chunk)
			return
		}
		w.log.Debug("flushed backlog", zap.Int("results", len(chunk)))
	}
}

func (w *Writer) execResults(ctx context.Context, results []model.IndicatorResult) error {
	start := time.Now()
	pipe := w.client.Pipeline()
	for i := range results {
		ind := &results[i]
		jsonData := bytesToString(ind.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: ind.StreamKey(),
			MaxLen: streamMaxLen(ind.TF),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, LatestKey(ind), jsonData, defaultLatestTTL)
		pipe.Publish(ctx, ind.Channel(), jsonData)
	}
	_, err := pipe.Exec(ctx)
	if w.OnWrite != nil {
		w.OnWrite(time.Since(start))
	}
	return err
}

// WriteBars appends closed bars to their bar streams. It is the producer
// side of the stream the service consumes.
func (w *Writer) WriteBars(ctx context.Context, bars []model.TFBar) error {
	if len(bars) == 0 {
		return nil
	}
	return w.cb.Execute(func() error {
		start := time.Now()
		pipe := w.client.Pipeline()
		n := 0
		for i := range bars {
			b := &bars[i]
			if b.Forming {
				continue
			}
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: b.StreamKey(),
				MaxLen: streamMaxLen(b.TF),
				Approx: true,
				Values: map[string]interface{}{"data": bytesToString(b.JSON())},
			})
			n++
		}
		if n == 0 {
			return nil
		}
		_, err := pipe.Exec(ctx)
		if w.OnWrite != nil {
			w.OnWrite(time.Since(start))
		}
		if err != nil {
			return fmt.Errorf("redis xadd bars: %w", err)
		}
		return nil
	})
}

// Publish publishes a message to a Redis Pub/Sub channel.
func (w *Writer) Publish(ctx context.Context, channel, message string) error {
	return w.client.Publish(ctx, channel, message).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	if n := w.backlog.len(); n > 0 {
		w.log.Warn("closing with unflushed results", zap.Int("backlog", n))
	}
	return w.client.Close()
}

// streamMaxLen keeps roughly three hours of entries per stream, never
// fewer than 200.
func streamMaxLen(tf int) int64 {
	if tf <= 0 {
		return 200
	}
	maxLen := int64(10800/tf) + 100
	if maxLen < 200 {
		maxLen = 200
	}
	return maxLen
}

// LatestKey is the key holding the most recent value of a result series:
// "ind:{name}:{tf}s:latest:{exchange}:{symbol}".
func LatestKey(r *model.IndicatorResult) string {
	return "ind:" + r.Name + ":" + strconv.Itoa(r.TF) + "s:latest:" + r.Exchange + ":" + r.Symbol
}

// bytesToString converts without copying; b must not be mutated afterwards.
func bytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

var (
	_ model.ResultWriter = (*Writer)(nil)
	_ model.BarWriter    = (*Writer)(nil)
)
