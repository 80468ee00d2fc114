package ingestor

// SourceEvent is one raw event delivered by the third-party livestream
// client. Field names intentionally match the normalization contract (spec
// §4.1) so the worker can forward most of them unchanged.
type SourceEvent struct {
	Kind EventKind

	RoomID       string
	UserHandle   string
	UserNickname string
	UserID       string

	Comment string

	GiftName     string
	DiamondCount int64
	GiftCount    int64
	Streaking    bool

	LikeCount  int64
	TotalLikes int64

	ShareJoinCount int64
}

// Stream is a live connection to one source session. Events() is closed
// when the source ends the session or the connection fails; Err() reports
// the reason, nil meaning a clean source-initiated disconnect.
type Stream interface {
	Events() <-chan SourceEvent
	Err() error
	Close() error
}

// SourceClient is the contract of the external livestream client library
// (spec §1: "we specify only its event contract" — the real client is an
// out-of-scope third-party dependency).
type SourceClient interface {
	Connect(kind InputKind, value string) (Stream, error)
}
