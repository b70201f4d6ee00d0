package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ta-core/internal/model"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultReplaySize = 500
	defaultSendQueue  = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// HubConfig sizes the per-channel replay buffers and per-client queues.
type HubConfig struct {
	ReplaySize int // envelopes kept per channel (default 500)
	SendQueue  int // queued envelopes per client before drops (default 256)
}

// Hub fans indicator results out to websocket clients. Every channel keeps
// a monotonic sequence number and a replay buffer so clients can detect
// and fill gaps.
type Hub struct {
	log *zap.Logger
	cfg HubConfig

	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]latestEntry
	seqs    map[string]int64
	replay  map[string]*ReplayBuffer
	seq     int64

	// Latency tracks bar-timestamp to broadcast lag.
	Latency *LatencyTracker

	// OnClientCount, when set, observes the client count after every
	// connect and disconnect.
	OnClientCount func(int)

	now func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, log *zap.Logger) *Hub {
	if cfg.ReplaySize <= 0 {
		cfg.ReplaySize = defaultReplaySize
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:     log.Named("ws-hub"),
		cfg:     cfg,
		clients: make(map[*Client]struct{}),
		latest:  make(map[string]latestEntry),
		seqs:    make(map[string]int64),
		replay:  make(map[string]*ReplayBuffer),
		Latency: NewLatencyTracker(10000),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PublishResults broadcasts every ready result on its "pub:ind:..." channel.
func (h *Hub) PublishResults(results []model.IndicatorResult) {
	for i := range results {
		r := &results[i]
		if !r.Ready {
			continue
		}
		if !r.TS.IsZero() {
			if lag := h.now().Sub(r.TS); lag >= 0 {
				h.Latency.Record(float64(lag.Microseconds()) / 1000.0)
			}
		}
		h.Broadcast(r.Channel(), r.JSON())
	}
}

// Broadcast wraps data in an envelope, stores it for replay and queues it
// on every client whose filters match. Clients with a full queue miss the
// envelope and can recover it by replay. Returns the number of clients the
// envelope was queued on.
func (h *Hub) Broadcast(channel string, data []byte) int {
	now := h.now()

	h.mu.Lock()
	h.seqs[channel]++
	channelSeq := h.seqs[channel]
	h.seq++
	seq := h.seq
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb, ok := h.replay[channel]
	if !ok {
		rb = NewReplayBuffer(h.cfg.ReplaySize)
		h.replay[channel] = rb
	}
	h.mu.Unlock()

	env := buildEnvelope(channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for c := range h.clients {
		if !c.filters.Matches(channel) {
			continue
		}
		select {
		case c.send <- env:
			delivered++
		default:
		}
	}
	return delivered
}

// buildEnvelope hand-crafts {"channel","data","ts","seq","channel_seq"};
// data must already be valid JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the request to a websocket and registers the client.
// An optional "symbols" query parameter (comma separated "EX:SYM") sets the
// initial filter; "last_ts" (RFC3339) limits the initial state.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	conn.EnableWriteCompression(true)

	c := newClient(h, conn)
	c.filters.Set(ParseFilterQuery(r.URL.Query()))
	h.register(c)

	c.sendInitialState(r.URL.Query().Get("last_ts"))
	go c.writePump()
	go c.readPump()
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.cfg.SendQueue),
		hub:  h,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", zap.String("client", c.id), zap.Int("clients", count))
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// RemoveClient unregisters a client and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", zap.String("client", c.id), zap.Int("clients", count))
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// Replay returns buffered envelopes for a channel with channel_seq in
// [fromSeq, toSeq].
func (h *Hub) Replay(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replay[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// Latest returns the most recent payload of every channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
