package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mobilesig/link"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// newConnPair dials a throwaway httptest server and returns both ends of a
// real WebSocket connection.
func newConnPair(t *testing.T) (client, server *websocket.Conn) {
	t.Helper()

	serverConnCh := make(chan *websocket.Conn, 1)
	upg := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upg.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConnCh <- conn
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-serverConnCh
	t.Cleanup(func() { server.Close() })
	return client, server
}

func TestPumpForwardsMessageUnchanged(t *testing.T) {
	inClient, inServer := newConnPair(t)
	outClient, outServer := newConnPair(t)

	inHandle := link.New(inServer, link.RoleSignaling)
	outHandle := link.New(outServer, link.RoleSignaling)

	go pump(inHandle, outHandle)

	require.NoError(t, inClient.WriteMessage(websocket.TextMessage, []byte("payload")))

	outClient.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := outClient.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	require.Equal(t, "payload", string(payload))
}

func TestPumpStopsWhenSourceCloses(t *testing.T) {
	inClient, inServer := newConnPair(t)
	outClient, outServer := newConnPair(t)

	inHandle := link.New(inServer, link.RoleSignaling)
	outHandle := link.New(outServer, link.RoleSignaling)

	codeCh := make(chan int, 1)
	outClient.SetCloseHandler(func(code int, text string) error {
		codeCh <- code
		return nil
	})
	go func() { outClient.ReadMessage() }()

	done := make(chan error, 1)
	go func() { done <- pump(inHandle, outHandle) }()

	inClient.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit after source closed")
	}

	// An abrupt TCP close (no close frame) must be treated as a failure,
	// tearing down the peer with protocol_error rather than forwarding a
	// bogus "clean close" code.
	select {
	case code := <-codeCh:
		require.Equal(t, websocket.CloseProtocolError, code)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received a teardown close frame")
	}
}

func TestPumpMirrorsRemoteCloseCodeOnPeer(t *testing.T) {
	inClient, inServer := newConnPair(t)
	outClient, outServer := newConnPair(t)

	inHandle := link.New(inServer, link.RoleSignaling)
	outHandle := link.New(outServer, link.RoleSignaling)

	codeCh := make(chan int, 1)
	outClient.SetCloseHandler(func(code int, text string) error {
		codeCh <- code
		return nil
	})
	go func() { outClient.ReadMessage() }()

	done := make(chan error, 1)
	go func() { done <- pump(inHandle, outHandle) }()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	require.NoError(t, inClient.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not exit after source sent a close frame")
	}

	select {
	case code := <-codeCh:
		require.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received the mirrored close frame")
	}
}
