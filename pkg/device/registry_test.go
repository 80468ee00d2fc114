package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialAgent spins up a test HTTP server that accepts one WebSocket
// connection and returns a client-side AgentConn plus a teardown func.
func dialAgent(t *testing.T) (*AgentConn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		go func() {
			for {
				if _, _, err := conn.Read(context.Background()); err != nil {
					return
				}
			}
		}()
	}))

	ctx := context.Background()
	clientConn, _, err := websocket.Dial(ctx, wsURL(srv.URL), nil)
	require.NoError(t, err)

	return &AgentConn{Conn: clientConn, ctx: ctx}, func() {
		clientConn.Close(websocket.StatusNormalClosure, "")
		srv.Close()
	}
}

func wsURL(httpURL string) string {
	return "ws" + httpURL[len("http"):]
}

func TestRegistry_RegisterDeviceSupersedesPrevious(t *testing.T) {
	reg := NewRegistry()
	first, teardownFirst := dialAgent(t)
	defer teardownFirst()
	second, teardownSecond := dialAgent(t)
	defer teardownSecond()

	reg.RegisterDevice("dev-1", first)
	conn, ok := reg.Device("dev-1")
	require.True(t, ok)
	assert.Same(t, first, conn)

	reg.RegisterDevice("dev-1", second)
	conn, ok = reg.Device("dev-1")
	require.True(t, ok)
	assert.Same(t, second, conn)

	// The superseded connection's own unregister must be a no-op: it is
	// no longer the registered channel, so a slow cleanup goroutine from
	// the old connection can never evict the new one.
	assert.False(t, reg.UnregisterDevice("dev-1", first))
	conn, ok = reg.Device("dev-1")
	require.True(t, ok)
	assert.Same(t, second, conn)

	assert.True(t, reg.UnregisterDevice("dev-1", second))
	_, ok = reg.Device("dev-1")
	assert.False(t, ok)
}

func TestRegistry_ClientTenantTracked(t *testing.T) {
	reg := NewRegistry()
	conn, teardown := dialAgent(t)
	defer teardown()

	reg.RegisterClient("client-1", "tenant-a", conn)
	got, ok := reg.Client("client-1")
	require.True(t, ok)
	assert.Same(t, conn, got)
	assert.Equal(t, "tenant-a", reg.clientTenant["client-1"])
}
