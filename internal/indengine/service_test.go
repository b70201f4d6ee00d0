package indengine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ta-core/internal/batch"
	"ta-core/internal/config"
	"ta-core/internal/model"
	sqlitestore "ta-core/internal/store/sqlite"
)

const smaChannel = "pub:ind:SMA_3:60s:NSE:INFY"

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Redis.Enabled = false
	cfg.SQLite.Path = ""
	cfg.Engine.TFs = []int{60}
	cfg.Engine.Indicators = []string{"SMA:3"}
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.closeStores)
	return svc
}

// startEngine runs the engine loop until the test ends.
func startEngine(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.engineLoop(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func bar(ts int64, c float64) model.TFBar {
	return model.TFBar{Symbol: "INFY", Exchange: "NSE", TF: 60, Bar: model.Bar{TS: ts, Open: c, High: c, Low: c, Close: c}}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcess_PublishesAndRejectsStale(t *testing.T) {
	svc := newTestService(t, testConfig())
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		svc.process(ctx, bar(i*60_000, float64(i)))
	}
	assert.Equal(t, int64(3), svc.hub.ChannelSeq(smaChannel), "SMA_3 is ready from the third bar")

	svc.process(ctx, bar(3*60_000, 99)) // older than the last bar
	svc.process(ctx, bar(5*60_000, 99)) // duplicate
	forming := bar(6*60_000, 6)
	forming.Forming = true
	svc.process(ctx, forming)
	assert.Equal(t, int64(3), svc.hub.ChannelSeq(smaChannel))

	var latest struct {
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(svc.hub.Latest()[smaChannel], &latest))
	assert.InDelta(t, 4.0, latest.Value, 1e-12)
}

func TestEnqueue_ReachesEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.RingSize = 2
	svc := newTestService(t, cfg)
	startEngine(t, svc)

	ctx := context.Background()
	for i := int64(1); i <= 20; i++ {
		svc.enqueue(ctx, bar(i*60_000, float64(i)))
	}
	require.Eventually(t, func() bool { return svc.hub.ChannelSeq(smaChannel) == 18 },
		2*time.Second, 5*time.Millisecond)
}

func TestHealthz(t *testing.T) {
	svc := newTestService(t, testConfig())
	h := svc.Router()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	svc.health.SetEngineOK(true)
	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newTestService(t, testConfig())
	svc.process(context.Background(), bar(60_000, 1))

	rec := do(t, svc.Router(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tacore_bars_consumed_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestBatchEndpoint(t *testing.T) {
	svc := newTestService(t, testConfig())
	h := svc.Router()

	rec := do(t, h, http.MethodPost, "/v1/batch/SMA:3", `{"close":[1,2,3,4,5]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got batch.Series
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "SMA_3", got.Name)
	require.Len(t, got.Points, 5)
	assert.Nil(t, got.Points[1].Value)
	require.NotNil(t, got.Points[4].Value)
	assert.InDelta(t, 4.0, *got.Points[4].Value, 1e-12)

	rec = do(t, h, http.MethodPost, "/v1/batch/ATR:2",
		`{"bars":[{"ts":1,"open":1,"high":2,"low":0,"close":1},{"ts":2,"open":1,"high":3,"low":1,"close":2},{"ts":3,"open":2,"high":3,"low":2,"close":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name, path, body string
		code             int
	}{
		{"unknown type", "/v1/batch/NOPE:3", `{"close":[1]}`, http.StatusNotFound},
		{"bad period", "/v1/batch/SMA:0", `{"close":[1]}`, http.StatusBadRequest},
		{"bad json", "/v1/batch/SMA:3", `{"close":`, http.StatusBadRequest},
		{"both inputs", "/v1/batch/SMA:3", `{"close":[1],"bars":[{"close":1}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestTypesEndpoint(t *testing.T) {
	svc := newTestService(t, testConfig())
	rec := do(t, svc.Router(), http.MethodGet, "/v1/indicators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"MACD"`)
}

func TestReloadEndpoint(t *testing.T) {
	svc := newTestService(t, testConfig())
	startEngine(t, svc)
	h := svc.Router()

	rec := do(t, h, http.MethodPost, "/reload", `{"indicators":["SMA:3","EMA:5"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res ReloadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []int{60}, res.TFs)

	rec = do(t, h, http.MethodPost, "/reload", `{"configs":[{"tf":60,"indicators":[{"type":"RSI","params":[14]}]},{"tf":300,"indicators":[{"type":"SMA","params":[9]}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []int{60, 300}, svc.currentTFs())

	tests := []struct {
		name, body string
		code       int
	}{
		{"empty", `{}`, http.StatusBadRequest},
		{"unknown", `{"indicators":["NOPE:1"]}`, http.StatusNotFound},
		{"bad tf", `{"configs":[{"tf":0,"indicators":[{"type":"SMA","params":[3]}]}]}`, http.StatusBadRequest},
		{"not json", `SMA:3`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/reload", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestReloadFromPayload(t *testing.T) {
	svc := newTestService(t, testConfig())
	startEngine(t, svc)

	svc.reloadFromPayload(context.Background(), "SMA:3,RSI:14")
	svc.reloadFromPayload(context.Background(), "NOPE")
	svc.reloadFromPayload(context.Background(), "")

	rec := do(t, svc.Router(), http.MethodGet, "/metrics", "")
	body := rec.Body.String()
	assert.Contains(t, body, `tacore_config_reloads_total{result="ok",source="pubsub"} 1`)
	assert.Contains(t, body, `tacore_config_reloads_total{result="error",source="pubsub"} 2`)
}

func TestBackfillFromSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path}, zap.NewNop())
	require.NoError(t, err)
	var bars []model.TFBar
	for i := int64(1); i <= 10; i++ {
		bars = append(bars, bar(i*60_000, float64(i)))
	}
	require.NoError(t, w.WriteBars(context.Background(), bars))
	require.NoError(t, w.Close())

	cfg := testConfig()
	cfg.SQLite.Path = path
	cfg.SQLite.PersistBars = false
	svc := newTestService(t, cfg)
	require.NotNil(t, svc.sqlReader)

	svc.backfill(context.Background())
	assert.Equal(t, 1, svc.engine.Symbols(60))
	assert.Equal(t, int64(600_000), svc.lastTS["bar:60s:NSE:INFY"])

	// the next live bar continues the backfilled series
	svc.process(context.Background(), bar(11*60_000, 11))
	var latest struct {
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(svc.hub.Latest()[smaChannel], &latest))
	assert.InDelta(t, 10.0, latest.Value, 1e-12)

	svc.process(context.Background(), bar(10*60_000, 10))
	assert.Equal(t, int64(1), svc.hub.ChannelSeq(smaChannel), "backfilled bars are not fed again")
}
