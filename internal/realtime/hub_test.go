package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carteira/internal/events"
	"carteira/internal/log"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, body, err := conn.ReadMessage()
	require.NoError(t, err)
	var e events.Event
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestHub_BroadcastsWithTypeFilter(t *testing.T) {
	hub := NewHub(log.New(log.Config{Output: io.Discard}))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	all := dial(t, srv, "")
	transfers := dial(t, srv, "?types=transfer")
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	ctx := context.Background()
	wallet, err := events.New(events.WalletCreated, "wal_1", map[string]string{}, time.Now())
	require.NoError(t, err)
	transfer, err := events.New(events.TransferCompleted, "trf_1", map[string]string{}, time.Now())
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, wallet))
	require.NoError(t, hub.Publish(ctx, transfer))

	assert.Equal(t, wallet.ID, readEvent(t, all).ID)
	assert.Equal(t, transfer.ID, readEvent(t, all).ID)
	assert.Equal(t, transfer.ID, readEvent(t, transfers).ID)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(log.New(log.Config{Output: io.Discard}))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestClientWants(t *testing.T) {
	c := &client{types: parseTypes(" transfer , transactions.executed,")}
	assert.True(t, c.wants(events.TransferCompleted))
	assert.True(t, c.wants(events.TransactionsExecuted))
	assert.False(t, c.wants(events.TransactionCreated))
	assert.False(t, c.wants("transferx.done"))

	assert.True(t, (&client{}).wants(events.WalletDeleted))
}
