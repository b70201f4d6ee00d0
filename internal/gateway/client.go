package gateway

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// Client represents a single websocket peer.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	filters Filters
}

// ID returns the client's connection ID.
func (c *Client) ID() string { return c.id }

// FilterSpec is the wire form of a client's subscription. Empty lists
// match everything.
type FilterSpec struct {
	Symbols    []string `json:"symbols"`    // "EXCHANGE:SYMBOL"
	Indicators []string `json:"indicators"` // result names, e.g. "SMA_20"
	TFs        []int    `json:"tfs"`
}

// Filters is a client's active subscription, safe for concurrent use.
type Filters struct {
	mu      sync.RWMutex
	symbols map[string]bool
	names   map[string]bool
	tfs     map[int]bool
}

// Set replaces the filters with spec.
func (f *Filters) Set(spec FilterSpec) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.symbols = toSet(spec.Symbols)
	f.names = toSet(spec.Indicators)
	f.tfs = nil
	if len(spec.TFs) > 0 {
		f.tfs = make(map[int]bool, len(spec.TFs))
		for _, tf := range spec.TFs {
			f.tfs[tf] = true
		}
	}
}

func toSet(xs []string) map[string]bool {
	if len(xs) == 0 {
		return nil
	}
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		if x = strings.TrimSpace(x); x != "" {
			m[x] = true
		}
	}
	return m
}

// Matches reports whether an envelope on channel passes the filters.
// Channels that are not indicator channels always pass.
func (f *Filters) Matches(channel string) bool {
	pc, ok := parseChannel(channel)
	if !ok {
		return true
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.symbols != nil && !f.symbols[pc.exchange+":"+pc.symbol] {
		return false
	}
	if f.names != nil && !f.names[pc.name] {
		return false
	}
	if f.tfs != nil && !f.tfs[pc.tf] {
		return false
	}
	return true
}

// parsedChannel holds the components of "pub:ind:{name}:{tf}s:{exchange}:{symbol}".
type parsedChannel struct {
	name     string
	tf       int
	exchange string
	symbol   string
}

func parseChannel(channel string) (parsedChannel, bool) {
	parts := strings.SplitN(channel, ":", 6)
	if len(parts) != 6 || parts[0] != "pub" || parts[1] != "ind" {
		return parsedChannel{}, false
	}
	tf, err := strconv.Atoi(strings.TrimSuffix(parts[3], "s"))
	if err != nil {
		return parsedChannel{}, false
	}
	return parsedChannel{name: parts[2], tf: tf, exchange: parts[4], symbol: parts[5]}, true
}

// ParseFilterQuery reads comma separated "symbols", "indicators" and "tfs"
// query parameters.
func ParseFilterQuery(q url.Values) FilterSpec {
	split := func(key string) []string {
		v := q.Get(key)
		if v == "" {
			return nil
		}
		return strings.Split(v, ",")
	}
	spec := FilterSpec{Symbols: split("symbols"), Indicators: split("indicators")}
	for _, s := range split("tfs") {
		if tf, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && tf > 0 {
			spec.TFs = append(spec.TFs, tf)
		}
	}
	return spec
}

// clientMsg is any client → server message.
type clientMsg struct {
	Type string `json:"type"` // SUBSCRIBE, UNSUBSCRIBE, REPLAY
	FilterSpec
	Channel string `json:"channel"`
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Ping    int64  `json:"ping"`
}

func (c *Client) sendInitialState(lastTS string) {
	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}
		if !c.filters.Matches(channel) {
			continue
		}
		env, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- env:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued envelopes into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("ws read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		c.handle(raw)
	}
}

// handle applies one client message. Replies are queued, never blocking.
func (c *Client) handle(raw []byte) {
	var msg clientMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.reply(map[string]interface{}{"type": "ERROR", "error": "invalid message: " + err.Error()})
		return
	}

	switch msg.Type {
	case "SUBSCRIBE":
		c.filters.Set(msg.FilterSpec)
		c.reply(map[string]interface{}{"type": "SUBSCRIBED", "client": c.id, "filters": msg.FilterSpec})
	case "UNSUBSCRIBE":
		c.filters.Set(FilterSpec{})
		c.reply(map[string]interface{}{"type": "UNSUBSCRIBED", "client": c.id})
	case "REPLAY":
		to := msg.To
		if to <= 0 {
			to = c.hub.ChannelSeq(msg.Channel)
		}
		for _, env := range c.hub.Replay(msg.Channel, msg.From, to) {
			c.queue(env)
		}
	default:
		if msg.Ping > 0 {
			c.reply(map[string]interface{}{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
			return
		}
		c.reply(map[string]interface{}{"type": "ERROR", "error": "unknown message type " + strconv.Quote(msg.Type)})
	}
}

func (c *Client) reply(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.queue(b)
}

// queue sends under the hub read lock so it cannot race RemoveClient
// closing the channel.
func (c *Client) queue(b []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}
