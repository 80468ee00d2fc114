package ingestor

import "time"

// SessionStatus is the lifecycle state of a LivestreamSession (spec §3).
type SessionStatus string

const (
	StatusConnecting   SessionStatus = "connecting"
	StatusLive         SessionStatus = "live"
	StatusDisconnected SessionStatus = "disconnected"
	StatusError        SessionStatus = "error"
)

// Session is a LivestreamSession (spec §3): owned end-to-end by the worker
// that created it, mutated only by that worker.
type Session struct {
	ID             string        `json:"id"`
	Tenant         string        `json:"tenant"`
	SourceHandle   string        `json:"source_handle"`
	Status         SessionStatus `json:"status"`
	RoomID         string        `json:"room_id,omitempty"`
	Counters       Counters      `json:"counters"`
	ConnectedAt    *time.Time    `json:"connected_at,omitempty"`
	DisconnectedAt *time.Time    `json:"disconnected_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Counters holds the running per-event-kind counts a session accumulates
// while live (spec §4.1: "increments the corresponding counter atomically").
type Counters struct {
	Comments int64 `json:"comments"`
	Gifts    int64 `json:"gifts"`
	Likes    int64 `json:"likes"`
	Joins    int64 `json:"joins"`
	Follows  int64 `json:"follows"`
	Shares   int64 `json:"shares"`
}

// EventKind enumerates the fixed set of normalized event kinds (spec §3).
type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventLiveEnd    EventKind = "live_end"
	EventComment    EventKind = "comment"
	EventGift       EventKind = "gift"
	EventLike       EventKind = "like"
	EventJoin       EventKind = "join"
	EventFollow     EventKind = "follow"
	EventShare      EventKind = "share"
)
