// Package iotforwarder implements the optional secondary worker noted in
// spec §1/§6/§9: it fans gift-derived device commands out to an external
// MQTT broker. It is never imported by the four core services; it only
// consumes the iot:commands:{tenant} stream they may optionally produce
// (see ruleengine.GiftBridge).
package iotforwarder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streamrelay/platform/pkg/broker"
)

// readBlock and readCount mirror the rule engine's consumer (spec §4.3).
const (
	readBlock = 2 * time.Second
	readCount = 10
)

// StreamReader is the subset of broker.Broker the worker depends on.
type StreamReader interface {
	ReadBatch(ctx context.Context, cursors map[string]string, count int64, block time.Duration) ([]broker.Message, error)
}

// Publisher is the subset of MQTTClient the worker depends on.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// TopicFunc derives the MQTT topic a device's commands are published on.
type TopicFunc func(deviceID string) string

// DefaultTopic matches the source's ThingsBoard RPC-style topic convention,
// generalized from its hardcoded "v1/devices/me/rpc" to a per-device path.
func DefaultTopic(deviceID string) string {
	return "iot/devices/" + deviceID + "/commands"
}

// commandPayload is the MQTT wire shape, a flattened view of the broker
// fields ruleengine.GiftBridge appends.
type commandPayload struct {
	DeviceID     string `json:"device_id"`
	CommandType  string `json:"command_type"`
	Tenant       string `json:"tenant"`
	GiftName     string `json:"gift_name,omitempty"`
	DiamondCount string `json:"diamond_count,omitempty"`
	GiftCount    string `json:"gift_count,omitempty"`
	SourceEvent  string `json:"source_event,omitempty"`
}

// Worker polls a fixed set of tenants' IoT command streams and republishes
// each entry to MQTT. Unlike the rule engine's Consumer, tenant discovery is
// not dynamic: this worker's whole existence is optional per spec, so its
// tenant set is operator-configured rather than discovered from the
// database (see cmd/iotforwarder).
type Worker struct {
	reader  StreamReader
	pub     Publisher
	topic   TopicFunc
	cursors map[string]string
}

// NewWorker wires a Worker over the given tenants, each starting from the
// earliest entry in its stream (spec §4.3's cursor convention). A nil topic
// func uses DefaultTopic.
func NewWorker(reader StreamReader, pub Publisher, tenants []string, topic TopicFunc) *Worker {
	if topic == nil {
		topic = DefaultTopic
	}
	cursors := make(map[string]string, len(tenants))
	for _, t := range tenants {
		cursors[broker.IoTCommandStreamKey(t)] = "0"
	}
	return &Worker{reader: reader, pub: pub, topic: topic, cursors: cursors}
}

// Run blocks, reading and forwarding until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := w.tick(ctx); err != nil {
			return err
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	if len(w.cursors) == 0 {
		return nil
	}
	msgs, err := w.reader.ReadBatch(ctx, w.cursors, readCount, readBlock)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		w.forward(ctx, msg)
		w.cursors[msg.Stream] = msg.ID
	}
	return nil
}

func (w *Worker) forward(ctx context.Context, msg broker.Message) {
	payload := commandPayload{
		DeviceID:     msg.Fields["device_id"],
		CommandType:  msg.Fields["command_type"],
		Tenant:       msg.Fields["tenant"],
		GiftName:     msg.Fields["gift_name"],
		DiamondCount: msg.Fields["diamond_count"],
		GiftCount:    msg.Fields["gift_count"],
		SourceEvent:  msg.Fields["source_event"],
	}
	if payload.DeviceID == "" {
		Logger.Warn().Str("stream", msg.Stream).Msg("iot command missing device_id, dropped")
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		Logger.Error().Err(err).Msg("iot command marshal failed")
		return
	}

	topic := w.topic(payload.DeviceID)
	if err := w.pub.Publish(ctx, topic, body); err != nil {
		Logger.Error().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		return
	}
	Logger.Info().Str("device_id", payload.DeviceID).Str("topic", topic).Str("tenant", payload.Tenant).Msg("iot command forwarded")
}
