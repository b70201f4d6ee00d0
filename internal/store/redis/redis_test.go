package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"ta-core/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBar(t *testing.T) {
	good := model.TFBar{Symbol: "INFY", Exchange: "NSE", TF: 60, Bar: model.Bar{TS: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 9}}

	got, err := decodeBar(map[string]interface{}{"data": string(good.JSON())})
	require.NoError(t, err)
	assert.Equal(t, good, got)

	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing field", map[string]interface{}{"other": "x"}},
		{"wrong type", map[string]interface{}{"data": 42}},
		{"bad json", map[string]interface{}{"data": "{not json"}},
		{"no tf", map[string]interface{}{"data": `{"symbol":"INFY","exchange":"NSE"}`}},
		{"no symbol", map[string]interface{}{"data": `{"tf":60}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeBar(tt.values)
			assert.Error(t, err)
		})
	}
}

func TestStreamArgs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", ">", ">"}, streamArgs([]string{"a", "b"}))
	assert.Empty(t, streamArgs(nil))
}

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("ERR no such key")))
	assert.False(t, isBusyGroup(nil))
}

func TestConsumerIdentity(t *testing.T) {
	g, c := consumerIdentity(ReaderConfig{})
	assert.Equal(t, "tacore", g)
	assert.Len(t, c, len("tacore-")+8)

	g, c = consumerIdentity(ReaderConfig{ConsumerGroup: "grp", ConsumerName: "w1"})
	assert.Equal(t, "grp", g)
	assert.Equal(t, "w1", c)
}

func TestStreamMaxLen(t *testing.T) {
	assert.Equal(t, int64(10900), streamMaxLen(1))
	assert.Equal(t, int64(280), streamMaxLen(60))
	assert.Equal(t, int64(200), streamMaxLen(3600))
	assert.Equal(t, int64(200), streamMaxLen(0))
}

func TestLatestKey(t *testing.T) {
	r := &model.IndicatorResult{Name: "SMA_20", TF: 60, Exchange: "NSE", Symbol: "INFY"}
	assert.Equal(t, "ind:SMA_20:60s:latest:NSE:INFY", LatestKey(r))
	assert.Equal(t, "ind:SMA_20:60s:NSE:INFY", r.StreamKey())
}

func TestBacklog(t *testing.T) {
	b := newBacklog(3)
	mk := func(names ...string) []model.IndicatorResult {
		out := make([]model.IndicatorResult, len(names))
		for i, n := range names {
			out[i] = model.IndicatorResult{Name: n}
		}
		return out
	}
	names := func(rs []model.IndicatorResult) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.Name
		}
		return out
	}

	b.push(mk("a", "b", "c", "d"))
	assert.Equal(t, 3, b.len())
	assert.Equal(t, uint64(1), b.droppedCount())

	first := b.take(2)
	assert.Equal(t, []string{"b", "c"}, names(first))

	b.requeue(first)
	assert.Equal(t, []string{"b", "c", "d"}, names(b.take(10)))
	assert.Zero(t, b.len())
}

// unreachableClient fails every command quickly with a dial error.
func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 200 * time.Millisecond,
	})
}

func TestWriter_BacklogsWhileFailing(t *testing.T) {
	client := unreachableClient()
	w := NewWithClient(client, WriterConfig{MaxFailures: 1, ResetTimeout: time.Hour}, nil)
	defer w.Close()

	var writes int
	w.OnWrite = func(time.Duration) { writes++ }

	results := []model.IndicatorResult{
		{Name: "SMA_3", TF: 60, Exchange: "NSE", Symbol: "INFY", Value: 1, Ready: true},
		{Name: "SMA_5", TF: 60, Exchange: "NSE", Symbol: "INFY", Ready: false},
	}

	ctx := context.Background()
	w.WriteIndicatorBatch(ctx, results)
	assert.Equal(t, 1, w.Pending(), "only ready results are kept")
	assert.Equal(t, StateOpen, w.Breaker().CurrentState())
	assert.Equal(t, 1, writes)

	// While open, nothing reaches the network.
	w.WriteIndicatorBatch(ctx, results)
	assert.Equal(t, 2, w.Pending())
	assert.Equal(t, 1, writes)

	err := w.WriteBars(ctx, []model.TFBar{{Symbol: "INFY", Exchange: "NSE", TF: 60}})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestWriter_SkipsEmptyBatches(t *testing.T) {
	w := NewWithClient(unreachableClient(), WriterConfig{}, nil)
	defer w.Close()

	w.WriteIndicatorBatch(context.Background(), nil)
	w.WriteIndicatorBatch(context.Background(), []model.IndicatorResult{{Name: "X", Ready: false}})
	assert.Zero(t, w.Pending())
	assert.Equal(t, StateClosed, w.Breaker().CurrentState())

	forming := model.TFBar{Symbol: "INFY", TF: 60, Forming: true}
	assert.NoError(t, w.WriteBars(context.Background(), []model.TFBar{forming}))
}
