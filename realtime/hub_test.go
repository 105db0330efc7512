package realtime_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/silsilat/tokenization-backend/realtime"
)

func dialHub(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.NoError(t, err)
	return conn
}

func TestEmitDeliversToConnectedUser(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialHub(t, server, "user-1")
	defer conn.Close()

	// Registration happens on the server side just after the handshake.
	time.Sleep(100 * time.Millisecond)
	hub.Emit("user-1", "sag-creation-progress", map[string]interface{}{"stage": "minting_tokens"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	assert.NoError(t, err)

	var envelope struct {
		Event string                 `json:"event"`
		Data  map[string]interface{} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(msg, &envelope))
	assert.Equal(t, "sag-creation-progress", envelope.Event)
	assert.Equal(t, "minting_tokens", envelope.Data["stage"])
}

func TestEmitToOtherUserIsNotDelivered(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dialHub(t, server, "user-1")
	defer conn.Close()

	hub.Emit("user-2", "token-purchase-complete", map[string]interface{}{"ok": true})

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestServeWSRequiresUserID(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()

	hub.ServeWS(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmitWithNoConnectionsIsSafe(t *testing.T) {
	hub := realtime.NewHub(zap.NewNop())

	assert.NotPanics(t, func() {
		hub.Emit("nobody", "sag-creation-error", map[string]interface{}{"error": "boom"})
	})
}
