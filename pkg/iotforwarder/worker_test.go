package iotforwarder

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/broker"
)

type fakeReader struct {
	mu      sync.Mutex
	batches [][]broker.Message
	idx     int
}

func (f *fakeReader) ReadBatch(ctx context.Context, cursors map[string]string, count int64, block time.Duration) ([]broker.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.batches) {
		return nil, nil
	}
	b := f.batches[f.idx]
	f.idx++
	return b, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []struct {
		topic   string
		payload []byte
	}
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, struct {
		topic   string
		payload []byte
	}{topic, payload})
	return nil
}

func TestWorker_ForwardsCommandToDeviceTopic(t *testing.T) {
	key := broker.IoTCommandStreamKey("tenant-a")
	reader := &fakeReader{batches: [][]broker.Message{
		{{Stream: key, ID: "1-0", Fields: map[string]string{
			"device_id": "motor_01", "command_type": "rotate", "tenant": "tenant-a", "gift_name": "Rose",
		}}},
	}}
	pub := &fakePublisher{}
	w := NewWorker(reader, pub, []string{"tenant-a"}, nil)

	require.NoError(t, w.tick(context.Background()))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "iot/devices/motor_01/commands", pub.published[0].topic)

	var decoded commandPayload
	require.NoError(t, json.Unmarshal(pub.published[0].payload, &decoded))
	assert.Equal(t, "motor_01", decoded.DeviceID)
	assert.Equal(t, "rotate", decoded.CommandType)
	assert.Equal(t, "Rose", decoded.GiftName)

	assert.Equal(t, "1-0", w.cursors[key])
}

func TestWorker_DropsCommandWithoutDeviceID(t *testing.T) {
	key := broker.IoTCommandStreamKey("tenant-a")
	reader := &fakeReader{batches: [][]broker.Message{
		{{Stream: key, ID: "1-0", Fields: map[string]string{"command_type": "rotate"}}},
	}}
	pub := &fakePublisher{}
	w := NewWorker(reader, pub, []string{"tenant-a"}, nil)

	require.NoError(t, w.tick(context.Background()))
	assert.Empty(t, pub.published)
}

func TestWorker_CustomTopicFunc(t *testing.T) {
	key := broker.IoTCommandStreamKey("tenant-a")
	reader := &fakeReader{batches: [][]broker.Message{
		{{Stream: key, ID: "1-0", Fields: map[string]string{"device_id": "led_strip_01"}}},
	}}
	pub := &fakePublisher{}
	w := NewWorker(reader, pub, []string{"tenant-a"}, func(deviceID string) string {
		return "custom/" + deviceID
	})

	require.NoError(t, w.tick(context.Background()))
	require.Len(t, pub.published, 1)
	assert.Equal(t, "custom/led_strip_01", pub.published[0].topic)
}
