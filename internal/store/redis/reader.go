package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ta-core/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	readCount   = 100
	readBlock   = 2 * time.Second
	replayBatch = 1000
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, default "tacore"
	ConsumerName  string // unique consumer name, default "tacore-<random>"
}

// Reader reads TF bars from Redis Streams via consumer groups and
// subscribes to control channels.
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
	log           *zap.Logger
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig, log *zap.Logger) (*Reader, error) {
	if log == nil {
		log = zap.NewNop()
	}
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

	group, consumer := consumerIdentity(cfg)
	log = log.Named("redis-reader")
	log.Info("connected",
		zap.String("addr", cfg.Addr), zap.String("group", group), zap.String("consumer", consumer))
	return &Reader{
		client:        client,
		consumerGroup: group,
		consumerName:  consumer,
		log:           log,
	}, nil
}

func consumerIdentity(cfg ReaderConfig) (string, string) {
	group := cfg.ConsumerGroup
	if group == "" {
		group = "tacore"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "tacore-" + uuid.NewString()[:8]
	}
	return group, consumer
}

// Client returns the underlying Redis client for health checks.
func (r *Reader) Client() *goredis.Client { return r.client }

// ConsumerName returns the name this reader claims messages under.
func (r *Reader) ConsumerName() string { return r.consumerName }

// EnsureConsumerGroup creates the consumer group on each stream if it
// doesn't exist. Fresh groups start at "$" (only new messages).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// EnsureConsumerGroupFrom creates the consumer group at startID, or moves
// an existing group's last-delivered ID there.
func (r *Reader) EnsureConsumerGroupFrom(ctx context.Context, stream, startID string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, startID).Err()
	if err == nil {
		return nil
	}
	if isBusyGroup(err) {
		return r.client.XGroupSetID(ctx, stream, r.consumerGroup, startID).Err()
	}
	return fmt.Errorf("xgroup create from %s at %s: %w", stream, startID, err)
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// ConsumeBars reads TF bars via XREADGROUP and hands each to sink. A message
// is acknowledged after sink returns; undecodable messages are acknowledged
// and dropped so they cannot wedge the group. Blocks until ctx is cancelled.
func (r *Reader) ConsumeBars(ctx context.Context, streams []string, sink func(model.TFBar)) error {
	if len(streams) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	args := streamArgs(streams)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) || ctx.Err() != nil {
				continue
			}
			r.log.Warn("xreadgroup failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		for _, stream := range results {
			r.deliver(ctx, stream.Stream, stream.Messages, sink)
		}
	}
}

// deliver decodes, hands off and acknowledges messages. Returns the number
// handed to sink.
func (r *Reader) deliver(ctx context.Context, stream string, msgs []goredis.XMessage, sink func(model.TFBar)) int {
	n := 0
	for _, msg := range msgs {
		bar, err := decodeBar(msg.Values)
		if err != nil {
			r.log.Warn("dropping undecodable message",
				zap.String("stream", stream), zap.String("id", msg.ID), zap.Error(err))
		} else {
			sink(bar)
			n++
		}
		r.client.XAck(ctx, stream, r.consumerGroup, msg.ID)
	}
	return n
}

// streamArgs builds the XREADGROUP stream list: [s1, s2, ..., ">", ">", ...].
func streamArgs(streams []string) []string {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}
	return args
}

// decodeBar parses the "data" field of a stream entry.
func decodeBar(values map[string]interface{}) (model.TFBar, error) {
	var bar model.TFBar
	data, ok := values["data"].(string)
	if !ok {
		return bar, errors.New("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &bar); err != nil {
		return bar, fmt.Errorf("unmarshal bar: %w", err)
	}
	if bar.TF <= 0 || bar.Symbol == "" {
		return bar, fmt.Errorf("bar without tf or symbol: %q", data)
	}
	return bar, nil
}

// RecoverPending redelivers this consumer's unacknowledged messages from a
// previous run. Gives at-least-once delivery across restarts.
func (r *Reader) RecoverPending(ctx context.Context, streams []string, sink func(model.TFBar)) error {
	for _, stream := range streams {
		for {
			pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Start:    "-",
				End:      "+",
				Count:    readCount,
				Consumer: r.consumerName,
			}).Result()
			if err != nil || len(pending) == 0 {
				break
			}

			ids := make([]string, len(pending))
			for i, p := range pending {
				ids[i] = p.ID
			}

			claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
				Stream:   stream,
				Group:    r.consumerGroup,
				Consumer: r.consumerName,
				MinIdle:  0,
				Messages: ids,
			}).Result()
			if err != nil {
				r.log.Warn("xclaim failed", zap.String("stream", stream), zap.Error(err))
				break
			}

			r.deliver(ctx, stream, claimed, sink)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if len(claimed) < len(ids) {
				break
			}
		}
	}
	return nil
}

// ReclaimStaleMessages XCLAIMs PEL entries idle longer than minIdle that
// belong to other consumers in the group.
func (r *Reader) ReclaimStaleMessages(ctx context.Context, stream string, minIdle time.Duration, batchSize int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != r.consumerName {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		MinIdle:  minIdle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}

	r.log.Info("reclaimed stale PEL entries", zap.String("stream", stream), zap.Int("count", len(claimed)))
	return claimed, nil
}

// StartPELReclaimer periodically reclaims stale PEL entries on every stream
// and hands them to sink. Runs until ctx is cancelled.
func (r *Reader) StartPELReclaimer(ctx context.Context, streams []string, interval, minIdle time.Duration, sink func(model.TFBar), onReclaim func(count int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total := 0
			for _, stream := range streams {
				claimed, err := r.ReclaimStaleMessages(ctx, stream, minIdle, 50)
				if err != nil {
					r.log.Warn("PEL reclaim failed", zap.String("stream", stream), zap.Error(err))
					continue
				}
				total += r.deliver(ctx, stream, claimed, sink)
			}
			if total > 0 && onReclaim != nil {
				onReclaim(total)
			}
		}
	}
}

// ReplayFromID reads every message after startID and hands each bar to
// sink. Returns the last ID read.
func (r *Reader) ReplayFromID(ctx context.Context, stream, startID string, sink func(model.TFBar)) (string, error) {
	lastID := startID
	for {
		results, err := r.client.XRangeN(ctx, stream, "("+lastID, "+", replayBatch).Result()
		if err != nil {
			return lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}

		for _, msg := range results {
			if ctx.Err() != nil {
				return lastID, ctx.Err()
			}
			if bar, err := decodeBar(msg.Values); err == nil {
				sink(bar)
			}
			lastID = msg.ID
		}

		if len(results) < replayBatch {
			break
		}
	}
	return lastID, nil
}

// DiscoverBarStreams lists existing bar streams for the given timeframes.
func (r *Reader) DiscoverBarStreams(ctx context.Context, tfs []int) ([]string, error) {
	var streams []string
	for _, tf := range tfs {
		pattern := "bar:" + strconv.Itoa(tf) + "s:*"
		iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
		for iter.Next(ctx) {
			if strings.Contains(iter.Val(), ":latest:") {
				continue
			}
			streams = append(streams, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return streams, fmt.Errorf("scan %s: %w", pattern, err)
		}
	}
	return streams, nil
}

// SubscribeChannel subscribes to a Pub/Sub channel and waits for the
// subscription to be confirmed.
func (r *Reader) SubscribeChannel(ctx context.Context, channel string) (*goredis.PubSub, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return pubsub, nil
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}

var _ model.BarConsumer = (*Reader)(nil)
