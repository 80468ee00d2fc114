package broker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

// GroupSink is the optional consumer-group/ack alternative spec §4.3 and §9
// allow in place of cursor-based reads: "adopt a consumer group and ack after
// audit persistence". It wraps a goa.design/pulse stream + sink, mirroring
// the thin-wrapper shape goadesign-goa-ai uses around the same library
// (features/stream/pulse/clients/pulse/client.go).
type GroupSink struct {
	stream *streaming.Stream
	sink   *streaming.Sink
}

// NewGroupSink opens (creating if needed) the named Pulse stream and a
// consumer group ("sink" in Pulse terms) on it. group is the consumer-group
// name; every process sharing group competes for undelivered entries.
func NewGroupSink(ctx context.Context, rdb *redis.Client, streamKey, group string) (*GroupSink, error) {
	str, err := streaming.NewStream(streamKey, rdb, streamopts.WithStreamMaxLen(DefaultMaxLen))
	if err != nil {
		return nil, fmt.Errorf("broker: open pulse stream %s: %w", streamKey, err)
	}
	sink, err := str.NewSink(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("broker: open pulse sink %s/%s: %w", streamKey, group, err)
	}
	return &GroupSink{stream: str, sink: sink}, nil
}

// Events returns the channel of never-before-delivered entries for this
// consumer group (Pulse's XREADGROUP ">"-semantics).
func (g *GroupSink) Events() <-chan *streaming.Event {
	return g.sink.Subscribe()
}

// Ack acknowledges an event, removing it from the group's pending-entries
// list. Spec §4.3: "if so, ack AFTER audit persistence, never before."
func (g *GroupSink) Ack(ctx context.Context, evt *streaming.Event) error {
	return g.sink.Ack(ctx, evt)
}

// Close releases the sink. The underlying stream (and its Redis key) is left
// intact — only Destroy removes it.
func (g *GroupSink) Close(ctx context.Context) {
	g.sink.Close(ctx)
}
