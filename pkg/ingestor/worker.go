package ingestor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamrelay/platform/pkg/metrics"
)

// SessionStore is the persistence contract the worker needs against a
// LivestreamSession. Store satisfies it; tests use a fake.
type SessionStore interface {
	MarkLive(ctx context.Context, id, roomID string, at time.Time) error
	MarkDisconnected(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id string) error
	IncrementCounter(ctx context.Context, id string, kind EventKind) error
}

// Worker owns exactly one LivestreamSession end to end (spec §4.1: "one
// worker per LivestreamSession"). Its run loop shape is grounded on the
// teacher's pkg/queue/worker.go (stopCh, sync.WaitGroup, structured
// slog.With logger per worker).
type Worker struct {
	session   *Session
	stream    Stream
	store     SessionStore
	publisher *Publisher

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker constructs a worker for an already-created, StatusConnecting session.
func NewWorker(session *Session, stream Stream, store SessionStore, publisher *Publisher) *Worker {
	return &Worker{
		session:   session,
		stream:    stream,
		store:     store,
		publisher: publisher,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the worker loop in its own goroutine. Start does not block.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop requests the worker to close its stream and wait for the loop to exit.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("session_id", w.session.ID, "tenant", w.session.Tenant)
	log.Info("ingestor worker started", "source_handle", w.session.SourceHandle)
	metrics.LivestreamSessionsActive.WithLabelValues(w.session.Tenant).Inc()
	defer metrics.LivestreamSessionsActive.WithLabelValues(w.session.Tenant).Dec()
	defer func() { _ = w.stream.Close() }()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-w.stream.Events():
			if !ok {
				w.handleStreamClosed(ctx, log)
				return
			}
			w.handleEvent(ctx, log, ev)
		}
	}
}

func (w *Worker) handleStreamClosed(ctx context.Context, log *slog.Logger) {
	if err := w.stream.Err(); err != nil {
		log.Error("ingestor stream ended with error", "error", err)
		if mErr := w.store.MarkError(ctx, w.session.ID); mErr != nil {
			log.Error("failed to persist session error status", "error", mErr)
		}
		return
	}
	log.Info("ingestor stream ended cleanly")
}

func (w *Worker) handleEvent(ctx context.Context, log *slog.Logger, ev SourceEvent) {
	switch ev.Kind {
	case EventConnect:
		now := time.Now().UTC()
		if err := w.store.MarkLive(ctx, w.session.ID, ev.RoomID, now); err != nil {
			log.Error("failed to mark session live", "error", err)
			return
		}
		w.session.Status = StatusLive
		w.session.RoomID = ev.RoomID
		w.session.ConnectedAt = &now
	case EventDisconnect, EventLiveEnd:
		now := time.Now().UTC()
		if err := w.store.MarkDisconnected(ctx, w.session.ID, now); err != nil {
			log.Error("failed to mark session disconnected", "error", err)
		}
		w.session.Status = StatusDisconnected
		w.session.DisconnectedAt = &now
	default:
		if err := w.store.IncrementCounter(ctx, w.session.ID, ev.Kind); err != nil {
			log.Error("failed to increment counter", "kind", ev.Kind, "error", err)
		}
	}

	// Publish every event kind, lifecycle included, so rules can trigger on
	// connect/disconnect/live_end too (spec §3 Event.event_kind enum).
	if _, err := w.publisher.Publish(ctx, w.session.Tenant, w.session.ID, ev); err != nil {
		log.Error("failed to publish event", "kind", ev.Kind, "error", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(w.session.Tenant, string(ev.Kind)).Inc()
}
