package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mobilesig/dispatcher"
	"mobilesig/extension"
	"mobilesig/link"
	"mobilesig/session"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

// TestHappyPathPrimaryOnlyRoundTrip exercises the protocol's scenario 1
// (minus the signaling leg, which dispatcher_test.go and registry_test.go
// already cover in isolation): a dispatcher dials a real destination
// server directly, the server pairs it as primary, and a message sent by
// the client arrives back exactly once via the server's echo-downlink
// behavior.
func TestHappyPathPrimaryOnlyRoundTrip(t *testing.T) {
	serverCfg := extension.NewConfig()
	serverCfg.EnableExtensions = true
	serverCfg.SetCoordinator("ws://coordinator.example")

	reg := session.NewRegistry(nil)
	handler := session.NewHandler(reg, serverCfg, nil)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	clientCfg := extension.NewConfig()
	clientCfg.EnableExtensions = true
	clientCfg.SetDestination(wsURL(ts))

	received := make(chan []byte, 1)
	d := dispatcher.New(clientCfg, nil, func(role link.Role, messageType int, payload []byte) {
		received <- payload
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Connect(ctx))
	defer d.Close()

	require.NoError(t, d.Send(websocket.TextMessage, []byte("hello")))

	select {
	case payload := <-received:
		assert.Equal(t, "hello", string(payload))
	case <-time.After(time.Second):
		t.Fatal("echoed message never arrived")
	}
}

// TestDuplicatePrimaryRejectedOverHTTP exercises scenario 3: a second
// primary offer for a connection-id that already has a live primary is
// rejected, and the original session is left untouched.
func TestDuplicatePrimaryRejectedOverHTTP(t *testing.T) {
	serverCfg := extension.NewConfig()
	serverCfg.EnableExtensions = true
	serverCfg.SetCoordinator("ws://coordinator.example")

	reg := session.NewRegistry(nil)
	handler := session.NewHandler(reg, serverCfg, nil)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	clientCfg := extension.NewConfig()
	clientCfg.EnableExtensions = true
	clientCfg.SetDestination(wsURL(ts))

	negA := extension.NewNegotiator(clientCfg)
	offerA, err := negA.GenerateOffer(wsURL(ts))
	require.NoError(t, err)

	connA, _, err := websocket.DefaultDialer.Dial(wsURL(ts), dialHeader(offerA))
	require.NoError(t, err)
	defer connA.Close()

	require.Eventually(t, func() bool {
		sess, ok := reg.Lookup(negA.ConnectionID)
		return ok && sess.Primary != nil
	}, time.Second, 5*time.Millisecond)

	offerB := extension.FormatHeader(extension.Attrs{
		{Name: extension.AttrConnectionID, Value: negA.ConnectionID, HasValue: true},
		{Name: extension.AttrPrimary},
	})
	_, respB, err := websocket.DefaultDialer.Dial(wsURL(ts), dialHeader(offerB))
	require.ErrorIs(t, err, websocket.ErrBadHandshake, "the registry rejects the duplicate primary before the upgrade")
	assert.Equal(t, http.StatusBadRequest, respB.StatusCode, "duplicate primary should be refused during the handshake")

	sess, ok := reg.Lookup(negA.ConnectionID)
	require.True(t, ok, "original session must survive the rejected duplicate")
	assert.NotNil(t, sess.Primary)
}

func dialHeader(offer string) map[string][]string {
	return map[string][]string{"Sec-WebSocket-Extensions": {offer}}
}
