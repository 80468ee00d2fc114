package ruleengine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/broker"
)

type fakeIoTPublisher struct {
	mu       sync.Mutex
	appended []struct {
		key    string
		fields map[string]string
	}
}

func (f *fakeIoTPublisher) Append(ctx context.Context, streamKey string, fields map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, struct {
		key    string
		fields map[string]string
	}{streamKey, fields})
	return "1-0", nil
}

func TestGiftBridge_ForwardsMappedGift(t *testing.T) {
	pub := &fakeIoTPublisher{}
	bridge := NewGiftBridge(pub)

	ev := Event{
		ID:     "1-0",
		Tenant: "tenant-a",
		Kind:   "gift",
		Fields: map[string]string{"gift_name": "Rose", "diamond_count": "1", "gift_count": "10"},
	}
	bridge.Forward(context.Background(), noopLogger(), ev)

	require.Len(t, pub.appended, 1)
	assert.Equal(t, broker.IoTCommandStreamKey("tenant-a"), pub.appended[0].key)
	assert.Equal(t, "motor_01", pub.appended[0].fields["device_id"])
	assert.Equal(t, "rotate", pub.appended[0].fields["command_type"])
}

func TestGiftBridge_UnmappedGiftIsDropped(t *testing.T) {
	pub := &fakeIoTPublisher{}
	bridge := NewGiftBridge(pub)

	ev := Event{Tenant: "tenant-a", Kind: "gift", Fields: map[string]string{"gift_name": "Unknown Gift"}}
	bridge.Forward(context.Background(), noopLogger(), ev)

	assert.Empty(t, pub.appended)
}

func TestGiftBridge_NilReceiverIsNoop(t *testing.T) {
	var bridge *GiftBridge
	bridge.Forward(context.Background(), noopLogger(), Event{Kind: "gift"})
}
