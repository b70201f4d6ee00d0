package indengine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"ta-core/internal/indicator"
	"ta-core/internal/model"
)

const (
	drainInterval = 50 * time.Millisecond
	ringFullWait  = time.Millisecond
)

// startRedis resolves the bar streams, prepares consumer groups and starts
// the consumer, the PEL reclaimer and the config subscriber.
func (svc *Service) startRedis(ctx context.Context) error {
	streams, err := svc.buildStreams(ctx)
	if err != nil {
		return err
	}
	svc.streams = streams
	svc.log.Info("consuming bar streams", zap.Int("streams", len(streams)), zap.Strings("names", streams))

	if len(streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, streams); err != nil {
			svc.log.Warn("consumer group setup", zap.Error(err))
		}
		go svc.consume(ctx)
		svc.startPELReclaimer(ctx)
	} else {
		svc.log.Warn("no bar streams found; only config reloads and batch requests will be served")
	}
	go svc.subscribeConfig(ctx)
	return nil
}

// buildStreams uses the configured instruments, or discovers bar streams for
// every engine TF.
func (svc *Service) buildStreams(ctx context.Context) ([]string, error) {
	tfs := svc.engine.TFs()
	if len(svc.cfg.Redis.Instruments) == 0 {
		return svc.redisReader.DiscoverBarStreams(ctx, tfs)
	}
	streams := make([]string, 0, len(tfs)*len(svc.cfg.Redis.Instruments))
	for _, tf := range tfs {
		for _, inst := range svc.cfg.Redis.Instruments {
			ex, sym, _ := strings.Cut(inst, ":")
			streams = append(streams, model.BarStreamKey(tf, ex, sym))
		}
	}
	return streams, nil
}

// consume is the ring's only producer: pending messages of this consumer
// first, then new messages until ctx is done.
func (svc *Service) consume(ctx context.Context) {
	if err := svc.redisReader.RecoverPending(ctx, svc.streams, func(b model.TFBar) { svc.enqueue(ctx, b) }); err != nil {
		svc.log.Warn("pending recovery", zap.Error(err))
	}
	err := svc.redisReader.ConsumeBars(ctx, svc.streams, func(b model.TFBar) { svc.enqueue(ctx, b) })
	if err != nil && !errors.Is(err, context.Canceled) {
		svc.log.Error("bar consumer stopped", zap.Error(err))
	}
}

// enqueue pushes b onto the ring, waiting for room when it is full.
func (svc *Service) enqueue(ctx context.Context, b model.TFBar) {
	if !svc.ring.Push(b) {
		svc.prom.RingBufOverflow.Inc()
		for !svc.ring.Push(b) {
			svc.nudge()
			select {
			case <-ctx.Done():
				return
			case <-time.After(ringFullWait):
			}
		}
	}
	svc.nudge()
}

func (svc *Service) nudge() {
	select {
	case svc.wake <- struct{}{}:
	default:
	}
}

// startPELReclaimer claims messages left idle by dead consumers. Claimed
// bars reach the engine goroutine through the reclaimed channel.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	rc := svc.cfg.Redis
	sink := func(b model.TFBar) {
		select {
		case svc.reclaimed <- b:
		case <-ctx.Done():
		}
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams, rc.PELInterval, rc.PELMinIdle, sink, func(count int) {
		svc.prom.PELMessagesReclaimed.Add(float64(count))
		svc.log.Info("reclaimed stale PEL messages", zap.Int("count", count))
	})
	svc.log.Info("PEL reclaimer started",
		zap.Duration("interval", rc.PELInterval), zap.Duration("min_idle", rc.PELMinIdle))
}

// engineLoop owns the engine. Every Process and ReloadConfigs call happens
// here.
func (svc *Service) engineLoop(ctx context.Context) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			svc.ring.Drain(func(b model.TFBar) { svc.process(ctx, b) })
			return
		case <-svc.wake:
		case <-ticker.C:
		case b := <-svc.reclaimed:
			svc.process(ctx, b)
		case req := <-svc.reloads:
			req.reply <- svc.applyReload(req.configs)
		}
		svc.ring.Drain(func(b model.TFBar) { svc.process(ctx, b) })
	}
}

// process feeds one bar to the engine and publishes its results. Forming
// bars and bars not newer than the last one on their stream are skipped.
func (svc *Service) process(ctx context.Context, b model.TFBar) {
	if b.Forming {
		return
	}
	key := b.StreamKey()
	if last, ok := svc.lastTS[key]; ok && b.TS <= last {
		svc.prom.StaleBarsRejected.Inc()
		svc.log.Debug("stale bar skipped", zap.String("stream", key), zap.Int64("ts", b.TS), zap.Int64("last", last))
		return
	}
	svc.lastTS[key] = b.TS
	svc.prom.BarsConsumed.Inc()
	svc.health.SetLastBarTime(b.Time())

	start := time.Now()
	results := svc.engine.Process(b)
	svc.prom.ComputeDur.Observe(time.Since(start).Seconds())
	svc.prom.IndicatorsTotal.Add(float64(len(results)))

	svc.publish(ctx, results)
	svc.persist(b)
}

func (svc *Service) publish(ctx context.Context, results []model.IndicatorResult) {
	if len(results) == 0 {
		return
	}
	if svc.redisWriter != nil {
		before := svc.redisWriter.Dropped()
		svc.redisWriter.WriteIndicatorBatch(ctx, results)
		if d := svc.redisWriter.Dropped() - before; d > 0 {
			svc.prom.ResultsDropped.Add(float64(d))
		}
	}
	if svc.hub != nil {
		svc.hub.PublishResults(results)
	}
}

func (svc *Service) persist(b model.TFBar) {
	if svc.barCh == nil {
		return
	}
	select {
	case svc.barCh <- b:
	default:
		svc.log.Warn("sqlite queue full, bar not persisted", zap.String("stream", b.StreamKey()), zap.Int64("ts", b.TS))
	}
}

type reloadRequest struct {
	configs []indicator.TFIndicatorConfig
	reply   chan ReloadResult
}

type ReloadResult struct {
	Preserved int   `json:"preserved"`
	Created   int   `json:"created"`
	TFs       []int `json:"tfs"`
}

func (svc *Service) applyReload(configs []indicator.TFIndicatorConfig) ReloadResult {
	preserved, created := svc.engine.ReloadConfigs(configs)
	tfs := svc.engine.TFs()
	svc.tfs.Store(tfs)
	svc.health.SetEnabledTFs(tfs)
	return ReloadResult{Preserved: preserved, Created: created, TFs: tfs}
}

// Reload validates configs and swaps them in on the engine goroutine.
// Calculators whose config is unchanged keep their state; new ones start
// cold. It needs Run's engine loop to be running.
func (svc *Service) Reload(ctx context.Context, configs []indicator.TFIndicatorConfig) (ReloadResult, error) {
	if err := indicator.ValidateConfigs(configs); err != nil {
		return ReloadResult{}, err
	}
	req := reloadRequest{configs: configs, reply: make(chan ReloadResult, 1)}
	select {
	case svc.reloads <- req:
	case <-ctx.Done():
		return ReloadResult{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return ReloadResult{}, ctx.Err()
	}
}

// currentTFs returns the engine's TFs as of the last reload. Safe from any
// goroutine.
func (svc *Service) currentTFs() []int {
	return svc.tfs.Load().([]int)
}

// specsForTFs applies one indicator list to every TF in tfs.
func specsForTFs(specs []indicator.IndicatorConfig, tfs []int) []indicator.TFIndicatorConfig {
	out := make([]indicator.TFIndicatorConfig, len(tfs))
	for i, tf := range tfs {
		out[i] = indicator.TFIndicatorConfig{TF: tf, Indicators: specs}
	}
	return out
}
