package ingestor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/api"
)

type fakeManagerStore struct {
	*fakeSessionStore
	mu       sync.Mutex
	sessions map[string]*Session
}

func newFakeManagerStore() *fakeManagerStore {
	return &fakeManagerStore{fakeSessionStore: newFakeSessionStore(), sessions: make(map[string]*Session)}
}

func (f *fakeManagerStore) Create(ctx context.Context, tenant, sourceHandle string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := &Session{ID: uuid.NewString(), Tenant: tenant, SourceHandle: sourceHandle, Status: StatusConnecting, CreatedAt: time.Now().UTC()}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeManagerStore) Get(ctx context.Context, tenant, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok || sess.Tenant != tenant {
		return nil, api.ErrNotFound
	}
	return sess, nil
}

func (f *fakeManagerStore) List(ctx context.Context, tenant string) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Session
	for _, sess := range f.sessions {
		if sess.Tenant == tenant {
			out = append(out, sess)
		}
	}
	return out, nil
}

func TestManager_ConnectAndDisconnect(t *testing.T) {
	client := NewFakeClient()
	store := newFakeManagerStore()
	publisher := NewPublisher(newTestBroker(t))
	m := NewManager(client, store, publisher)

	sess, err := m.Connect(context.Background(), "tenant-a", "@coolstreamer")
	require.NoError(t, err)
	require.Equal(t, "tenant-a", sess.Tenant)

	require.Eventually(t, func() bool {
		store.fakeSessionStore.mu.Lock()
		defer store.fakeSessionStore.mu.Unlock()
		_, ok := store.fakeSessionStore.live[sess.ID]
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Disconnect(context.Background(), "tenant-a", sess.ID))

	store.fakeSessionStore.mu.Lock()
	disconnected := store.fakeSessionStore.disc[sess.ID]
	store.fakeSessionStore.mu.Unlock()
	require.True(t, disconnected)
}

func TestManager_DisconnectUnknownTenantScoped(t *testing.T) {
	client := NewFakeClient()
	store := newFakeManagerStore()
	publisher := NewPublisher(newTestBroker(t))
	m := NewManager(client, store, publisher)

	sess, err := m.Connect(context.Background(), "tenant-a", "@coolstreamer")
	require.NoError(t, err)

	err = m.Disconnect(context.Background(), "tenant-b", sess.ID)
	require.ErrorIs(t, err, api.ErrNotFound)
}
