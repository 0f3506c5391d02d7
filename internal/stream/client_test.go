package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn, req sessionRequest)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stream-secret", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var req sessionRequest
		require.NoError(t, conn.ReadJSON(&req))
		handler(t, conn, req)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func sendJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func closeNormally(conn *websocket.Conn) {
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stop block reached"),
		time.Now().Add(time.Second),
	)
}

func TestClientSessionLifecycle(t *testing.T) {
	endpoint := newStreamServer(t, func(t *testing.T, conn *websocket.Conn, req sessionRequest) {
		assert.Equal(t, uint64(100), req.StartBlock)
		assert.Equal(t, uint64(200), req.StopBlock)
		assert.Equal(t, "map_balance_changes", req.OutputModule)

		sendJSON(t, conn, map[string]interface{}{
			"type": "block_scoped_data",
			"block": map[string]interface{}{
				"number": 100,
				"hash":   "0xabc",
				"balance_changes": []map[string]string{
					{"contract": "0xAAA", "owner": "0x1", "transfer_value": "10"},
				},
			},
		})
		sendJSON(t, conn, map[string]interface{}{"type": "progress", "processed_blocks": 1})
		closeNormally(conn)
	})

	client := NewClient(endpoint, SessionConfig{
		StartBlock:   100,
		StopBlock:    200,
		OutputModule: "map_balance_changes",
		Token:        "stream-secret",
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := client.Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	msg, err := sess.Recv(ctx)
	require.NoError(t, err)
	block, ok := msg.(BlockScopedData)
	require.True(t, ok)
	assert.Equal(t, uint64(100), block.Block.Number)
	require.Len(t, block.Block.BalanceChanges, 1)

	msg, err = sess.Recv(ctx)
	require.NoError(t, err)
	progress, ok := msg.(Progress)
	require.True(t, ok)
	assert.Equal(t, uint64(1), progress.ProcessedBlocks)

	_, err = sess.Recv(ctx)
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestClientSkipsUnknownMessages(t *testing.T) {
	endpoint := newStreamServer(t, func(t *testing.T, conn *websocket.Conn, _ sessionRequest) {
		sendJSON(t, conn, map[string]interface{}{"type": "heartbeat"})
		sendJSON(t, conn, map[string]interface{}{"type": "progress", "processed_blocks": 7})
		closeNormally(conn)
	})

	client := NewClient(endpoint, SessionConfig{Token: "stream-secret"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := client.Connect(ctx)
	require.NoError(t, err)
	defer sess.Close()

	msg, err := sess.Recv(ctx)
	require.NoError(t, err)
	progress, ok := msg.(Progress)
	require.True(t, ok)
	assert.Equal(t, uint64(7), progress.ProcessedBlocks)
}

func TestClientConnectRequiresEndpoint(t *testing.T) {
	client := NewClient("", SessionConfig{}, nil)

	_, err := client.Connect(context.Background())
	assert.Error(t, err)
}
