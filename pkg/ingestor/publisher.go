package ingestor

import (
	"context"
	"strconv"
	"time"

	"github.com/streamrelay/platform/pkg/broker"
)

// Publisher appends normalized events onto a tenant's broker stream (spec
// §4.1 "Normalization contract", §4.2 stream key convention).
type Publisher struct {
	broker *broker.Broker
}

// NewPublisher wraps a broker client.
func NewPublisher(b *broker.Broker) *Publisher { return &Publisher{broker: b} }

// Publish appends one normalized event to tiktok:events:{tenant}. Append is
// synchronous with the caller (spec §4.1 Back-pressure: "the publisher's
// append is synchronous to keep the per-session counters and the stream
// append ordered").
func (p *Publisher) Publish(ctx context.Context, tenant, sessionID string, ev SourceEvent) (string, error) {
	fields := normalizeFields(sessionID, ev)
	return p.broker.Append(ctx, broker.EventStreamKey(tenant), fields)
}

// normalizeFields flattens a SourceEvent into the stable field-name contract
// Conditions address (spec §4.1). gift_value_usd is computed here because it
// depends on diamond_count*gift_count, not carried by the source verbatim.
func normalizeFields(sessionID string, ev SourceEvent) map[string]string {
	fields := map[string]string{
		"event_kind": string(ev.Kind),
		"session":    sessionID,
		"handle":     ev.UserHandle,
		"nickname":   ev.UserNickname,
		"user_id":    ev.UserID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}

	switch ev.Kind {
	case EventComment:
		fields["comment"] = ev.Comment
	case EventGift:
		fields["gift_name"] = ev.GiftName
		fields["diamond_count"] = strconv.FormatInt(ev.DiamondCount, 10)
		fields["gift_count"] = strconv.FormatInt(ev.GiftCount, 10)
		fields["streaking"] = strconv.FormatBool(ev.Streaking)
		if !ev.Streaking {
			// 1 diamond ≈ $0.005 USD, the conventional TikTok gift valuation.
			usd := float64(ev.DiamondCount) * float64(ev.GiftCount) * 0.005
			fields["gift_value_usd"] = strconv.FormatFloat(usd, 'f', 4, 64)
		}
	case EventLike:
		fields["count"] = strconv.FormatInt(ev.LikeCount, 10)
		fields["total_likes"] = strconv.FormatInt(ev.TotalLikes, 10)
	case EventShare:
		fields["join_count"] = strconv.FormatInt(ev.ShareJoinCount, 10)
	case EventConnect:
		fields["room_id"] = ev.RoomID
	}

	return fields
}
