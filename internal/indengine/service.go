// Package indengine runs the streaming indicator service: bars arrive on
// Redis Streams, one goroutine owns the indicator engine, and results go
// out to Redis and to websocket clients.
package indengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ta-core/internal/config"
	"ta-core/internal/gateway"
	"ta-core/internal/indicator"
	"ta-core/internal/metrics"
	"ta-core/internal/model"
	"ta-core/internal/ringbuf"
	redisstore "ta-core/internal/store/redis"
	sqlitestore "ta-core/internal/store/sqlite"
)

const livenessInterval = 10 * time.Second

// Service wires the stores, the engine and the HTTP surface, and manages
// their lifecycle. Redis, SQLite and the websocket hub are each optional.
type Service struct {
	cfg *config.Config
	log *zap.Logger

	reg    *prometheus.Registry
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	engine *indicator.Engine
	hub    *gateway.Hub

	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	sqlReader   *sqlitestore.Reader
	sqlWriter   *sqlitestore.Writer

	// ring carries consumed bars from the stream reader goroutine to the
	// engine goroutine; wake nudges the engine goroutine after a push.
	ring      *ringbuf.Ring[model.TFBar]
	wake      chan struct{}
	reclaimed chan model.TFBar
	reloads   chan reloadRequest
	barCh     chan model.TFBar

	tfs atomic.Value // []int

	// lastTS is the newest processed bar per stream key. Engine goroutine only.
	lastTS map[string]int64

	streams []string
}

// New builds a service from cfg, connecting every enabled dependency.
// A SQLite failure is logged and the service continues without history;
// a Redis failure is returned.
func New(cfg *config.Config, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tfConfigs, err := cfg.TFIndicatorConfigs()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	svc := &Service{
		cfg:       cfg,
		log:       log,
		reg:       reg,
		prom:      metrics.NewMetrics(reg),
		health:    metrics.NewHealthStatus(),
		engine:    indicator.NewEngine(tfConfigs, log.Named("engine")),
		ring:      ringbuf.New[model.TFBar](cfg.Engine.RingSize),
		wake:      make(chan struct{}, 1),
		reclaimed: make(chan model.TFBar, 256),
		reloads:   make(chan reloadRequest),
		lastTS:    make(map[string]int64, 256),
	}
	svc.tfs.Store(svc.engine.TFs())
	svc.health.SetEnabledTFs(svc.engine.TFs())
	svc.health.RequireRedis = cfg.Redis.Enabled
	svc.health.RequireSQLite = cfg.SQLite.Path != ""

	if cfg.Gateway.Enabled {
		svc.hub = gateway.NewHub(gateway.HubConfig{
			ReplaySize: cfg.Gateway.ReplaySize,
			SendQueue:  cfg.Gateway.SendQueue,
		}, log)
		svc.hub.OnClientCount = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	}

	if cfg.SQLite.Path != "" {
		svc.openSQLite()
	}

	if cfg.Redis.Enabled {
		if err := svc.openRedis(); err != nil {
			svc.closeStores()
			return nil, err
		}
	}
	return svc, nil
}

func (svc *Service) openSQLite() {
	path := svc.cfg.SQLite.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			svc.log.Warn("sqlite dir create failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	var err error
	svc.sqlReader, err = sqlitestore.NewReader(path, svc.log)
	if err != nil {
		svc.log.Warn("sqlite reader init failed, continuing without backfill", zap.Error(err))
	}
	if !svc.cfg.SQLite.PersistBars {
		return
	}
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   path,
		OnCommit: func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) },
	}, svc.log)
	if err != nil {
		svc.log.Warn("sqlite writer init failed, bars will not be persisted", zap.Error(err))
		return
	}
	svc.barCh = make(chan model.TFBar, 5000)
}

func (svc *Service) openRedis() error {
	rc := svc.cfg.Redis
	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          rc.Addr,
		Password:      rc.Password,
		DB:            rc.DB,
		ConsumerGroup: rc.ConsumerGroup,
		ConsumerName:  rc.ConsumerName,
	}, svc.log)
	if err != nil {
		return fmt.Errorf("redis reader: %w", err)
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		MaxFailures:  rc.MaxFailures,
		ResetTimeout: rc.ResetTimeout,
	}, svc.log)
	if err != nil {
		return fmt.Errorf("redis writer: %w", err)
	}
	svc.redisWriter.OnWrite = func(d time.Duration) { svc.prom.RedisWriteDur.Observe(d.Seconds()) }
	svc.redisWriter.Breaker().OnStateChange = func(from, to redisstore.State) {
		svc.prom.CircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.CircuitBreakerTrips.Inc()
		}
		svc.log.Warn("redis circuit breaker", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	svc.health.SetRedisConnected(true)
	return nil
}

// Engine exposes the indicator engine. It must only be used from the
// goroutine running Run, or before Run starts.
func (svc *Service) Engine() *indicator.Engine { return svc.engine }

// Hub returns the websocket hub, or nil when the gateway is disabled.
func (svc *Service) Hub() *gateway.Hub { return svc.hub }

// Registry returns the Prometheus registry the service reports on.
func (svc *Service) Registry() *prometheus.Registry { return svc.reg }

// Run backfills, starts every subsystem and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc.log.Info("starting indicator service",
		zap.Ints("tfs", svc.engine.TFs()),
		zap.Bool("redis", svc.redisReader != nil),
		zap.Bool("sqlite", svc.sqlReader != nil),
		zap.Bool("gateway", svc.hub != nil))

	svc.backfill(ctx)
	svc.health.SetEngineOK(true)

	var sqlDone chan struct{}
	if svc.sqlWriter != nil {
		sqlDone = make(chan struct{})
		go func() {
			defer close(sqlDone)
			svc.sqlWriter.Run(ctx, svc.barCh)
		}()
	}

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		svc.engineLoop(ctx)
	}()

	if svc.redisReader != nil {
		if err := svc.startRedis(ctx); err != nil {
			cancel()
			<-engineDone
			svc.closeStores()
			return err
		}
	}
	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.sqlDB(), livenessInterval)

	srv := &http.Server{
		Addr:              svc.cfg.Server.Addr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		svc.log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-srvErr:
		svc.log.Error("http server failed", zap.Error(runErr))
	}

	svc.log.Info("shutting down")
	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), svc.cfg.Server.ShutdownTimeout)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		svc.log.Warn("http shutdown", zap.Error(err))
	}
	if svc.hub != nil {
		svc.hub.Close()
	}

	<-engineDone
	if sqlDone != nil {
		<-sqlDone
	}
	svc.closeStores()
	svc.log.Info("shutdown complete")
	return runErr
}

// backfill warms the engine from stored bars and records the newest
// timestamp per stream so replayed messages are not fed twice.
func (svc *Service) backfill(ctx context.Context) {
	if svc.sqlReader == nil {
		return
	}
	tr := &trackingReader{BarReader: svc.sqlReader, last: svc.lastTS}
	start := time.Now()
	n, err := indicator.Backfill(ctx, svc.engine, tr, 0, svc.cfg.SQLite.BackfillDepth,
		func(results []model.IndicatorResult) {
			if svc.redisWriter != nil {
				svc.redisWriter.WriteIndicatorBatch(ctx, results)
			}
		}, svc.log)
	if err != nil {
		svc.log.Warn("backfill incomplete", zap.Int("bars", n), zap.Error(err))
		return
	}
	svc.log.Info("backfill complete", zap.Int("bars", n), zap.Duration("took", time.Since(start)))
}

// trackingReader records the newest bar timestamp per stream key as
// bars are read.
type trackingReader struct {
	model.BarReader
	last map[string]int64
}

func (t *trackingReader) ReadAllBars(ctx context.Context, tf int, afterTS int64) ([]model.TFBar, error) {
	bars, err := t.BarReader.ReadAllBars(ctx, tf, afterTS)
	for _, b := range bars {
		if k := b.StreamKey(); b.TS > t.last[k] {
			t.last[k] = b.TS
		}
	}
	return bars, err
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisWriter == nil {
		return nil
	}
	return svc.redisWriter.Client()
}

func (svc *Service) sqlDB() *sql.DB {
	if svc.sqlReader == nil {
		return nil
	}
	return svc.sqlReader.DB()
}

func (svc *Service) closeStores() {
	if svc.sqlReader != nil {
		svc.sqlReader.Close()
	}
	if svc.sqlWriter != nil {
		svc.sqlWriter.Close()
	}
	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
	if svc.redisReader != nil {
		svc.redisReader.Close()
	}
}
