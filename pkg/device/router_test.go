package device

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/api"
)

type fakeStore struct {
	mu       sync.Mutex
	devices  map[string]*Device
	commands map[string]*Command
	seq      int
}

func newFakeStore(devices ...*Device) *fakeStore {
	s := &fakeStore{devices: make(map[string]*Device), commands: make(map[string]*Command)}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

func (s *fakeStore) GetDevice(ctx context.Context, tenant, id string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok || d.Tenant != tenant {
		return nil, api.ErrNotFound
	}
	return d, nil
}

func (s *fakeStore) CreateCommand(ctx context.Context, tenant, deviceID, commandType string, params map[string]interface{}) (*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cmd := &Command{
		ID: "cmd-" + strconv.Itoa(s.seq), DeviceID: deviceID, Tenant: tenant, CommandType: commandType,
		Parameters: params, Status: CommandPending, CreatedAt: time.Now().UTC().Add(time.Duration(s.seq) * time.Millisecond),
	}
	s.commands[cmd.ID] = cmd
	return cmd, nil
}

func (s *fakeStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return api.ErrNotFound
	}
	cmd.Status = CommandSent
	cmd.SentAt = &at
	return nil
}

func (s *fakeStore) MarkTerminal(ctx context.Context, id string, status CommandStatus, result map[string]interface{}, errMsg string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return api.ErrNotFound
	}
	cmd.Status = status
	cmd.Result = result
	cmd.ErrorMessage = errMsg
	cmd.CompletedAt = &at
	return nil
}

func (s *fakeStore) GetCommandByID(ctx context.Context, id string) (*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd, ok := s.commands[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return cmd, nil
}

func (s *fakeStore) PendingCommandsForDevice(ctx context.Context, deviceID string) ([]*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Command
	for _, cmd := range s.commands {
		if cmd.DeviceID == deviceID && cmd.Status == CommandPending {
			out = append(out, cmd)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *fakeStore) PendingCommandsForClient(ctx context.Context, clientID string) ([]*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Command
	for _, cmd := range s.commands {
		dev, ok := s.devices[cmd.DeviceID]
		if ok && dev.ClientID == clientID && cmd.Status == CommandPending {
			out = append(out, cmd)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (s *fakeStore) DevicesForClient(ctx context.Context, clientID string) ([]*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Device
	for _, d := range s.devices {
		if d.ClientID == clientID {
			out = append(out, d)
		}
	}
	return out, nil
}

func sortByCreatedAt(cmds []*Command) {
	for i := 1; i < len(cmds); i++ {
		for j := i; j > 0 && cmds[j].CreatedAt.Before(cmds[j-1].CreatedAt); j-- {
			cmds[j], cmds[j-1] = cmds[j-1], cmds[j]
		}
	}
}

func TestRouter_DispatchWithNoAgentStaysPending(t *testing.T) {
	dev := &Device{ID: "dev-1", Tenant: "w1"}
	store := newFakeStore(dev)
	router := NewRouter(store, NewRegistry())

	cmd, err := router.Dispatch(context.Background(), "w1", "dev-1", "relight", nil)
	require.NoError(t, err)
	assert.Equal(t, CommandPending, cmd.Status)
}

func TestRouter_DispatchWrongTenantNotFound(t *testing.T) {
	dev := &Device{ID: "dev-1", Tenant: "w1"}
	store := newFakeStore(dev)
	router := NewRouter(store, NewRegistry())

	_, err := router.Dispatch(context.Background(), "w2", "dev-1", "relight", nil)
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestRouter_DispatchSendsImmediatelyWhenAgentConnected(t *testing.T) {
	dev := &Device{ID: "dev-1", Tenant: "w1"}
	store := newFakeStore(dev)
	registry := NewRegistry()
	agent, teardown := dialAgent(t)
	defer teardown()
	registry.RegisterDevice("dev-1", agent)

	router := NewRouter(store, registry)
	cmd, err := router.Dispatch(context.Background(), "w1", "dev-1", "relight", map[string]interface{}{"color": "red"})
	require.NoError(t, err)
	assert.Equal(t, CommandSent, cmd.Status)
	require.NotNil(t, cmd.SentAt)
}

func TestRouter_ReplayDeviceDeliversPendingInOrder(t *testing.T) {
	dev := &Device{ID: "dev-1", Tenant: "w1"}
	store := newFakeStore(dev)
	router := NewRouter(store, NewRegistry())

	_, err := router.Dispatch(context.Background(), "w1", "dev-1", "first", nil)
	require.NoError(t, err)
	_, err = router.Dispatch(context.Background(), "w1", "dev-1", "second", nil)
	require.NoError(t, err)

	agent, teardown := dialAgent(t)
	defer teardown()

	require.NoError(t, router.ReplayDevice(context.Background(), "dev-1", agent))

	pending, err := store.PendingCommandsForDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApplyResult_UnknownCommandIDDropped(t *testing.T) {
	store := newFakeStore()
	err := ApplyResult(context.Background(), store, Result{CommandID: "missing", Status: CommandCompleted})
	assert.NoError(t, err)
}

func TestApplyResult_MarksTerminal(t *testing.T) {
	dev := &Device{ID: "dev-1", Tenant: "w1"}
	store := newFakeStore(dev)
	cmd, err := store.CreateCommand(context.Background(), "w1", "dev-1", "relight", nil)
	require.NoError(t, err)

	err = ApplyResult(context.Background(), store, Result{CommandID: cmd.ID, Status: CommandCompleted, Result: map[string]interface{}{"ok": true}})
	require.NoError(t, err)

	got, err := store.GetCommandByID(context.Background(), cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, CommandCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestApplyResult_AlreadyTerminalDropped(t *testing.T) {
	dev := &Device{ID: "dev-1", Tenant: "w1"}
	store := newFakeStore(dev)
	cmd, err := store.CreateCommand(context.Background(), "w1", "dev-1", "relight", nil)
	require.NoError(t, err)
	require.NoError(t, store.MarkTerminal(context.Background(), cmd.ID, CommandFailed, nil, "boom", time.Now().UTC()))

	err = ApplyResult(context.Background(), store, Result{CommandID: cmd.ID, Status: CommandCompleted})
	require.NoError(t, err)

	got, err := store.GetCommandByID(context.Background(), cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, CommandFailed, got.Status)
}
