package ingestor

import (
	"fmt"
	"sync"
)

// FakeClient is a deterministic, in-process SourceClient. It exists because
// the real third-party livestream client library is explicitly out of scope
// (spec §1: "we specify only its event contract") — this is the seam a real
// vendor SDK plugs into, and is what cmd/ingestor wires by default so the
// service is runnable without one.
type FakeClient struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
}

// NewFakeClient constructs a FakeClient with no open streams.
func NewFakeClient() *FakeClient {
	return &FakeClient{streams: make(map[string]*fakeStream)}
}

// Connect opens a fake stream for value. It never fails; real clients would
// return an error for an unreachable or nonexistent room.
func (c *FakeClient) Connect(kind InputKind, value string) (Stream, error) {
	s := &fakeStream{events: make(chan SourceEvent, 16)}
	c.mu.Lock()
	c.streams[value] = s
	c.mu.Unlock()

	s.events <- SourceEvent{Kind: EventConnect, RoomID: fmt.Sprintf("fake-room-%s", value)}
	return s, nil
}

// Emit pushes ev onto the open stream for value, if any. Used by tests and
// by an operator driving the fake client manually (e.g. over an admin API)
// in a deployment with no real vendor SDK configured. Returns false if the
// stream is unknown or already closed.
func (c *FakeClient) Emit(value string, ev SourceEvent) bool {
	c.mu.Lock()
	s, ok := c.streams[value]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return s.send(ev)
}

type fakeStream struct {
	mu     sync.Mutex
	events chan SourceEvent
	err    error
	closed bool
}

func (s *fakeStream) send(ev SourceEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.events <- ev
	return true
}

func (s *fakeStream) Events() <-chan SourceEvent { return s.events }
func (s *fakeStream) Err() error                 { return s.err }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
