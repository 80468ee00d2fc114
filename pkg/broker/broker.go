// Package broker wraps the append-only per-tenant event log described in
// spec §4.2: bounded-length streams, cursor-based blocking reads across many
// streams at once, and an optional consumer-group/ack path.
//
// The primary path (Append/ReadBatch) talks to Redis Streams directly via
// github.com/redis/go-redis/v9, because the cursor semantics spec §4.3
// requires — an arbitrary per-stream starting ID, not "only new messages" —
// don't fit a consumer-group model. The optional ack-based alternative
// (§4.3, §9) is a separate type, GroupSink, built on goa.design/pulse's
// consumer-group streams (see groupsink.go), grounded on how
// goadesign-goa-ai wraps the same library.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxLen bounds each stream to roughly this many entries (spec §4.2: "≈10000").
const DefaultMaxLen = 10_000

// EventStreamKey returns the per-tenant event stream key (spec §4.2, §6).
func EventStreamKey(tenant string) string {
	return fmt.Sprintf("tiktok:events:%s", tenant)
}

// IoTCommandStreamKey returns the optional secondary-worker stream key (spec §4.2, §9).
func IoTCommandStreamKey(tenant string) string {
	return fmt.Sprintf("iot:commands:%s", tenant)
}

// Message is one entry read back from a stream: its broker-assigned ID and
// its flattened field map (spec's Event "carries a broker-assigned monotonic
// event_id within their stream").
type Message struct {
	Stream string
	ID     string
	Fields map[string]string
}

// Broker is a thin client over one Redis connection shared by every stream.
type Broker struct {
	rdb    redis.UniversalClient
	maxLen int64
}

// New constructs a Broker. maxLen <= 0 uses DefaultMaxLen.
func New(rdb redis.UniversalClient, maxLen int) *Broker {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Broker{rdb: rdb, maxLen: int64(maxLen)}
}

// Append publishes fields onto streamKey, trimming to ~maxLen entries
// (XADD ... MAXLEN ~ N), and returns the broker-assigned message ID.
func (b *Broker) Append(ctx context.Context, streamKey string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: b.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("broker: append to %s: %w", streamKey, err)
	}
	return id, nil
}

// ReadBatch issues a blocking multi-stream read: cursors maps each stream key
// to the last-seen ID (use "0" to read from the earliest entry, spec §4.3's
// "initial cursor is the earliest id"). Returns up to count entries per
// stream across all of them, or nothing if block elapses first.
func (b *Broker) ReadBatch(ctx context.Context, cursors map[string]string, count int64, block time.Duration) ([]Message, error) {
	if len(cursors) == 0 {
		return nil, nil
	}
	streams := make([]string, 0, len(cursors)*2)
	for key := range cursors {
		streams = append(streams, key)
	}
	for _, key := range streams {
		streams = append(streams, cursors[key])
	}

	res, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: streams,
		Count:   count,
		Block:   block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("broker: read batch: %w", err)
	}

	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			fields := make(map[string]string, len(entry.Values))
			for k, v := range entry.Values {
				if s, ok := v.(string); ok {
					fields[k] = s
				} else {
					fields[k] = fmt.Sprintf("%v", v)
				}
			}
			out = append(out, Message{Stream: stream.Stream, ID: entry.ID, Fields: fields})
		}
	}
	return out, nil
}
