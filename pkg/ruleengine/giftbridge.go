package ruleengine

import (
	"context"
	"log/slog"

	"github.com/streamrelay/platform/pkg/broker"
)

// IoTPublisher is the subset of broker.Broker the gift bridge needs.
// broker.Broker satisfies it; tests use a fake.
type IoTPublisher interface {
	Append(ctx context.Context, streamKey string, fields map[string]string) (string, error)
}

// GiftMapping is a static gift-name-to-device-action mapping (spec §9,
// ported from the source's GiftProcessor — device IDs are hardcoded there
// too, left as a TODO for a future rule/config-driven lookup).
type GiftMapping struct {
	DeviceID string
	Action   string
}

// defaultGiftMappings mirrors the source's gift_mappings table.
var defaultGiftMappings = map[string]GiftMapping{
	"Rose":     {DeviceID: "motor_01", Action: "rotate"},
	"TikTok":   {DeviceID: "led_strip_01", Action: "flash"},
	"Lion":     {DeviceID: "motor_01", Action: "rotate"},
	"Universe": {DeviceID: "motor_01", Action: "special_effect"},
}

// GiftBridge forwards gift events onto the optional iot:commands:{tenant}
// stream for the secondary MQTT worker (spec §6, §9). It runs independently
// of rule evaluation: every gift event the consumer reads is bridged whether
// or not any rule matches it, and a gift with no mapping is silently
// dropped. The consumer only reads the streams of tenants with at least one
// active rule, so a tenant with no active rules gets no gifts bridged. This is
// explicitly non-core per spec.md §1 ("its mapping logic is not core");
// failures are logged, never propagated to the consumer's tick loop.
type GiftBridge struct {
	publisher IoTPublisher
	mappings  map[string]GiftMapping
}

// NewGiftBridge wires a GiftBridge over the default mapping table.
func NewGiftBridge(publisher IoTPublisher) *GiftBridge {
	return &GiftBridge{publisher: publisher, mappings: defaultGiftMappings}
}

// Forward maps ev (already known to be a gift event) to a device command and
// appends it to the tenant's IoT command stream. A nil bridge is a valid
// no-op receiver so callers can wire it optionally without a nil check.
func (b *GiftBridge) Forward(ctx context.Context, log *slog.Logger, ev Event) {
	if b == nil {
		return
	}

	giftName := ev.Fields["gift_name"]
	mapping, ok := b.mappings[giftName]
	if !ok {
		return
	}

	key := broker.IoTCommandStreamKey(ev.Tenant)
	fields := map[string]string{
		"device_id":     mapping.DeviceID,
		"command_type":  mapping.Action,
		"tenant":        ev.Tenant,
		"gift_name":     giftName,
		"diamond_count": ev.Fields["diamond_count"],
		"gift_count":    ev.Fields["gift_count"],
		"source_event":  ev.ID,
	}

	if _, err := b.publisher.Append(ctx, key, fields); err != nil {
		log.Error("gift bridge: failed to forward to iot command stream", "tenant", ev.Tenant, "gift_name", giftName, "error", err)
	}
}
