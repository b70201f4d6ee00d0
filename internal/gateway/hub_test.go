package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ta-core/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envelope is the parsed broadcast message.
type envelope struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	TS         string          `json:"ts"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
}

// fakeClient registers a client with no connection; tests read its queue.
func fakeClient(h *Hub, spec FilterSpec) *Client {
	c := newClient(h, nil)
	c.filters.Set(spec)
	h.register(c)
	return c
}

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case b := <-c.send:
			out = append(out, b)
		default:
			return out
		}
	}
}

func result(name, symbol string, tf int, v float64) model.IndicatorResult {
	return model.IndicatorResult{
		Name: name, Symbol: symbol, Exchange: "NSE", TF: tf,
		Value: v, Ready: true, TS: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestBuildEnvelope(t *testing.T) {
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)
	buf := buildEnvelope("pub:ind:SMA_9:60s:NSE:INFY", []byte(`{"value":103.5}`), now, 42, 7)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, "pub:ind:SMA_9:60s:NSE:INFY", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, int64(7), env.ChannelSeq)
	assert.JSONEq(t, `{"value":103.5}`, string(env.Data))

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func TestFilters_Matches(t *testing.T) {
	ch := "pub:ind:SMA_20:60s:NSE:INFY"
	tests := []struct {
		name string
		spec FilterSpec
		want bool
	}{
		{"empty matches all", FilterSpec{}, true},
		{"symbol hit", FilterSpec{Symbols: []string{"NSE:INFY"}}, true},
		{"symbol miss", FilterSpec{Symbols: []string{"NSE:TCS"}}, false},
		{"indicator hit", FilterSpec{Indicators: []string{"SMA_20", "RSI_14"}}, true},
		{"indicator miss", FilterSpec{Indicators: []string{"RSI_14"}}, false},
		{"tf hit", FilterSpec{TFs: []int{60}}, true},
		{"tf miss", FilterSpec{TFs: []int{300}}, false},
		{"all hit", FilterSpec{Symbols: []string{"NSE:INFY"}, Indicators: []string{"SMA_20"}, TFs: []int{60}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Filters
			f.Set(tt.spec)
			assert.Equal(t, tt.want, f.Matches(ch))
		})
	}

	var f Filters
	f.Set(FilterSpec{Symbols: []string{"NSE:TCS"}})
	assert.True(t, f.Matches("metrics"), "non-indicator channels always pass")
}

func TestParseChannel(t *testing.T) {
	pc, ok := parseChannel("pub:ind:MACD_12_26_9:300s:NSE:INFY")
	require.True(t, ok)
	assert.Equal(t, parsedChannel{name: "MACD_12_26_9", tf: 300, exchange: "NSE", symbol: "INFY"}, pc)

	for _, bad := range []string{"pub:ind:SMA:60s:NSE", "pub:bar:SMA:60s:NSE:X", "pub:ind:SMA:xs:NSE:X", ""} {
		_, ok := parseChannel(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseFilterQuery(t *testing.T) {
	q := url.Values{"symbols": {"NSE:INFY,NSE:TCS"}, "tfs": {"60, 300,bad"}}
	spec := ParseFilterQuery(q)
	assert.Equal(t, []string{"NSE:INFY", "NSE:TCS"}, spec.Symbols)
	assert.Nil(t, spec.Indicators)
	assert.Equal(t, []int{60, 300}, spec.TFs)
}

func TestHub_PublishResults(t *testing.T) {
	h := NewHub(HubConfig{ReplaySize: 3}, nil)
	var counts []int
	h.OnClientCount = func(n int) { counts = append(counts, n) }

	all := fakeClient(h, FilterSpec{})
	tcs := fakeClient(h, FilterSpec{Symbols: []string{"NSE:TCS"}})
	assert.Equal(t, 2, h.ClientCount())

	notReady := result("SMA_3", "INFY", 60, 0)
	notReady.Ready = false
	h.PublishResults([]model.IndicatorResult{
		result("SMA_3", "INFY", 60, 1),
		notReady,
		result("SMA_3", "TCS", 60, 2),
	})

	assert.Len(t, drain(all), 2)
	got := drain(tcs)
	require.Len(t, got, 1)
	var env envelope
	require.NoError(t, json.Unmarshal(got[0], &env))
	assert.Equal(t, "pub:ind:SMA_3:60s:NSE:TCS", env.Channel)
	assert.Equal(t, int64(2), env.Seq)
	assert.Equal(t, int64(1), env.ChannelSeq)

	assert.Equal(t, 2, h.Latency.Stats().Count)
	assert.Len(t, h.Latest(), 2)

	h.RemoveClient(tcs)
	h.RemoveClient(tcs) // second removal is a no-op
	assert.Equal(t, []int{1, 2, 1}, counts)
}

func TestHub_ReplayKeepsRecent(t *testing.T) {
	h := NewHub(HubConfig{ReplaySize: 3}, nil)
	ch := "pub:ind:SMA_3:60s:NSE:INFY"
	for i := 0; i < 5; i++ {
		h.Broadcast(ch, []byte(`{"i":1}`))
	}

	assert.Equal(t, int64(5), h.ChannelSeq(ch))
	got := h.Replay(ch, 1, 5)
	require.Len(t, got, 3)
	var env envelope
	require.NoError(t, json.Unmarshal(got[0], &env))
	assert.Equal(t, int64(3), env.ChannelSeq)

	assert.Nil(t, h.Replay("pub:ind:none:60s:NSE:X", 1, 5))
}

func TestHub_FullQueueDrops(t *testing.T) {
	h := NewHub(HubConfig{SendQueue: 2}, nil)
	c := fakeClient(h, FilterSpec{})
	for i := 0; i < 5; i++ {
		h.Broadcast("pub:ind:SMA_3:60s:NSE:INFY", []byte(`{}`))
	}
	assert.Len(t, drain(c), 2)
}

func TestHub_WebsocketRoundTrip(t *testing.T) {
	h := NewHub(HubConfig{}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?symbols=NSE:INFY"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"ping": 7}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong map[string]interface{}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
	assert.Equal(t, 7.0, pong["ping"])

	h.PublishResults([]model.IndicatorResult{
		result("SMA_3", "TCS", 60, 2),
		result("SMA_3", "INFY", 60, 1),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	lines := strings.Split(string(raw), "\n")
	require.Len(t, lines, 1, "the TCS result is filtered out")
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &env))
	assert.Equal(t, "pub:ind:SMA_3:60s:NSE:INFY", env.Channel)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
