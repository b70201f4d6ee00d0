package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ta-core/internal/batch"
	"ta-core/internal/core"
	"ta-core/internal/indicator"
	"ta-core/internal/metrics"
	"ta-core/internal/model"
)

const (
	maxBatchBody  = 8 << 20
	maxReloadBody = 1 << 20
	apiTimeout    = 30 * time.Second
)

// Router builds the HTTP surface:
//
//	GET  /healthz            health JSON
//	GET  /metrics            Prometheus
//	POST /reload             swap indicator configs
//	GET  /v1/indicators      registered indicator types
//	POST /v1/batch/{spec}    one-shot compute over posted bars
//	GET  /ws                 websocket stream (when the gateway is enabled)
func (svc *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(svc.requestLogger)

	r.Get("/healthz", svc.health.ServeHTTP)
	r.Handle("/metrics", metrics.Handler(svc.reg))
	r.With(middleware.Timeout(apiTimeout)).Post("/reload", svc.handleReload)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(apiTimeout))
		r.Get("/indicators", svc.handleTypes)
		r.Post("/batch/{spec}", svc.handleBatch)
	})

	if svc.hub != nil {
		r.Get("/ws", svc.hub.ServeHTTP)
	}
	return r
}

func (svc *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		svc.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// errorStatus maps coded errors to HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownIndicator):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidParameter), errors.Is(err, core.ErrLengthMismatch),
		errors.Is(err, core.ErrParse), errors.Is(err, core.ErrConfigInvalid), errors.Is(err, core.ErrConfigMissing):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// reloadBody accepts either full per-TF configs or one spec list applied to
// every current TF.
type reloadBody struct {
	Configs    []indicator.TFIndicatorConfig `json:"configs"`
	Indicators []string                      `json:"indicators"`
}

func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	var body reloadBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReloadBody)).Decode(&body); err != nil {
		svc.prom.ConfigReloads.WithLabelValues("http", "error").Inc()
		writeError(w, http.StatusBadRequest, core.WrapError(core.ErrParse, err))
		return
	}

	configs, err := svc.reloadConfigs(body)
	if err == nil {
		var res ReloadResult
		if res, err = svc.Reload(r.Context(), configs); err == nil {
			svc.prom.ConfigReloads.WithLabelValues("http", "ok").Inc()
			svc.log.Info("config reloaded", zap.String("source", "http"),
				zap.Int("preserved", res.Preserved), zap.Int("created", res.Created))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"status":    "ok",
				"preserved": res.Preserved,
				"created":   res.Created,
				"tfs":       res.TFs,
			})
			return
		}
	}
	svc.prom.ConfigReloads.WithLabelValues("http", "error").Inc()
	svc.log.Warn("config reload rejected", zap.String("source", "http"), zap.Error(err))
	writeError(w, errorStatus(err), err)
}

func (svc *Service) reloadConfigs(body reloadBody) ([]indicator.TFIndicatorConfig, error) {
	if len(body.Configs) > 0 {
		return body.Configs, nil
	}
	if len(body.Indicators) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("body needs configs or indicators"))
	}
	specs, err := indicator.ParseSpecs(strings.Join(body.Indicators, ","))
	if err != nil {
		return nil, err
	}
	return specsForTFs(specs, svc.currentTFs()), nil
}

func (svc *Service) handleTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"types": indicator.Types()})
}

// batchBody carries either full bars or a bare close series.
type batchBody struct {
	Bars  []model.Bar `json:"bars"`
	Close []float64   `json:"close"`
}

func (b batchBody) series() ([]model.Bar, error) {
	switch {
	case len(b.Bars) > 0 && len(b.Close) > 0:
		return nil, core.Invalidf("send bars or close, not both")
	case len(b.Bars) > 0:
		return b.Bars, nil
	}
	bars := make([]model.Bar, len(b.Close))
	for i, c := range b.Close {
		bars[i] = model.PriceBar(c)
	}
	return bars, nil
}

func (svc *Service) handleBatch(w http.ResponseWriter, r *http.Request) {
	spec := chi.URLParam(r, "spec")
	cfg, err := indicator.ParseSpec(spec)
	if err != nil {
		svc.prom.BatchRequests.WithLabelValues("invalid", "error").Inc()
		writeError(w, errorStatus(err), err)
		return
	}

	fail := func(err error) {
		svc.prom.BatchRequests.WithLabelValues(cfg.Type, "error").Inc()
		writeError(w, errorStatus(err), err)
	}

	var body batchBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody)).Decode(&body); err != nil {
		fail(core.WrapError(core.ErrParse, err))
		return
	}
	bars, err := body.series()
	if err != nil {
		fail(err)
		return
	}
	out, err := batch.Compute(cfg, bars)
	if err != nil {
		fail(err)
		return
	}
	svc.prom.BatchRequests.WithLabelValues(cfg.Type, "ok").Inc()
	writeJSON(w, http.StatusOK, out)
}

// subscribeConfig applies comma-separated spec lists published on the
// config channel to every current TF.
func (svc *Service) subscribeConfig(ctx context.Context) {
	channel := svc.cfg.Redis.ConfigChannel
	if channel == "" {
		return
	}
	pubsub, err := svc.redisReader.SubscribeChannel(ctx, channel)
	if err != nil {
		svc.log.Warn("config subscription failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	defer pubsub.Close()
	svc.log.Info("subscribed for dynamic reload", zap.String("channel", channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			svc.reloadFromPayload(ctx, msg.Payload)
		}
	}
}

func (svc *Service) reloadFromPayload(ctx context.Context, payload string) {
	specs, err := indicator.ParseSpecs(payload)
	if err == nil && len(specs) == 0 {
		err = core.WrapError(core.ErrConfigMissing, errors.New("empty indicator list"))
	}
	if err == nil {
		var res ReloadResult
		if res, err = svc.Reload(ctx, specsForTFs(specs, svc.currentTFs())); err == nil {
			svc.prom.ConfigReloads.WithLabelValues("pubsub", "ok").Inc()
			svc.log.Info("config reloaded", zap.String("source", "pubsub"),
				zap.Int("preserved", res.Preserved), zap.Int("created", res.Created))
			return
		}
	}
	svc.prom.ConfigReloads.WithLabelValues("pubsub", "error").Inc()
	svc.log.Warn("config update rejected", zap.String("payload", payload), zap.Error(err))
}
