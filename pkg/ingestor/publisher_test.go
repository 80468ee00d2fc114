package ingestor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFields_Gift(t *testing.T) {
	fields := normalizeFields("sess-1", SourceEvent{
		Kind:         EventGift,
		UserHandle:   "fan1",
		GiftName:     "Rose",
		DiamondCount: 1,
		GiftCount:    3,
		Streaking:    false,
	})

	assert.Equal(t, "gift", fields["event_kind"])
	assert.Equal(t, "sess-1", fields["session"])
	assert.Equal(t, "Rose", fields["gift_name"])
	assert.Equal(t, "1", fields["diamond_count"])
	assert.Equal(t, "3", fields["gift_count"])
	assert.Equal(t, "false", fields["streaking"])
	assert.Equal(t, "0.0150", fields["gift_value_usd"])
}

func TestNormalizeFields_StreakingGiftHasNoValue(t *testing.T) {
	fields := normalizeFields("sess-1", SourceEvent{
		Kind:         EventGift,
		GiftName:     "Rose",
		DiamondCount: 1,
		GiftCount:    1,
		Streaking:    true,
	})
	_, ok := fields["gift_value_usd"]
	assert.False(t, ok)
}

func TestNormalizeFields_Comment(t *testing.T) {
	fields := normalizeFields("sess-1", SourceEvent{Kind: EventComment, Comment: "hello!"})
	assert.Equal(t, "hello!", fields["comment"])
}
