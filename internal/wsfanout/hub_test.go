package wsfanout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"module/internal/telemetry"
)

func TestHandlerUpgradesAndForwardsBroadcast(t *testing.T) {
	fanout := telemetry.NewFanout(func(s telemetry.Snapshot) ([]byte, error) {
		return json.Marshal(s)
	}, nil, nil)
	go fanout.Run()
	defer fanout.Stop()

	handler := NewHandler(fanout, nil, nil)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, backlogMsg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NotEmpty(t, backlogMsg)

	require.Eventually(t, func() bool { return fanout.Count() == 1 }, time.Second, 10*time.Millisecond)

	fanout.Broadcast(telemetry.Snapshot{Lifecycle: "RUNNING", Temperature: 1234})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var snap telemetry.Snapshot
	require.NoError(t, json.Unmarshal(msg, &snap))
	require.Equal(t, "RUNNING", snap.Lifecycle)
}

var _ http.Handler = (*Handler)(nil)
