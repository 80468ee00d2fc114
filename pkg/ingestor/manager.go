package ingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamrelay/platform/pkg/api"
)

// ManagerStore is the persistence contract the manager needs, beyond
// SessionStore, to create and look up sessions.
type ManagerStore interface {
	SessionStore
	Create(ctx context.Context, tenant, sourceHandle string) (*Session, error)
	Get(ctx context.Context, tenant, id string) (*Session, error)
	List(ctx context.Context, tenant string) ([]*Session, error)
}

// Manager owns the set of live workers for a process. It is the
// ingestor-side analogue of the teacher's queue.WorkerPool: a single-writer
// map of session id -> running worker, guarded by one mutex.
type Manager struct {
	client    SourceClient
	store     ManagerStore
	publisher *Publisher

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewManager wires a Manager to its collaborators.
func NewManager(client SourceClient, store ManagerStore, publisher *Publisher) *Manager {
	return &Manager{client: client, store: store, publisher: publisher, workers: make(map[string]*Worker)}
}

// Connect parses a source handle, creates a session row, opens a source
// connection, and starts its worker. Returns the created session.
func (m *Manager) Connect(ctx context.Context, tenant, rawHandle string) (*Session, error) {
	kind, value, err := ParseSourceInput(rawHandle)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.Create(ctx, tenant, rawHandle)
	if err != nil {
		return nil, err
	}

	stream, err := m.client.Connect(kind, value)
	if err != nil {
		_ = m.store.MarkError(ctx, sess.ID)
		return nil, fmt.Errorf("ingestor: connect to source: %w", err)
	}

	worker := NewWorker(sess, stream, m.store, m.publisher)
	m.mu.Lock()
	m.workers[sess.ID] = worker
	m.mu.Unlock()

	worker.Start(context.Background())
	return sess, nil
}

// Disconnect stops the worker for a session, if one is running locally,
// and marks the session disconnected regardless (spec §6: "POST
// /api/livestreams/{id}/disconnect").
func (m *Manager) Disconnect(ctx context.Context, tenant, sessionID string) error {
	sess, err := m.store.Get(ctx, tenant, sessionID)
	if err != nil {
		return err
	}
	if sess.Tenant != tenant {
		return api.ErrNotFound
	}

	m.mu.Lock()
	worker, ok := m.workers[sessionID]
	delete(m.workers, sessionID)
	m.mu.Unlock()

	if ok {
		worker.Stop()
	}
	return m.store.MarkDisconnected(ctx, sessionID, time.Now().UTC())
}
