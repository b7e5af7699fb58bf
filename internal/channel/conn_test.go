// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWebsocketDialer_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.TextMessage, []byte(
			`{"sessionId":"s1","stage":"uploading","percent":10}`+"\n"+`{"sessionId":"s1","stage":"processing","percent":60}`))
		_ = ws.WriteMessage(websocket.PingMessage, nil)
		_ = ws.WriteMessage(websocket.BinaryMessage, []byte(`{"sessionId":"s1","stage":"complete"}`))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	c, err := New(Options{URL: url, Dialer: WebsocketDialer{HandshakeTimeout: time.Second, ReadLimit: 1 << 16}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	c.Attach("s1")
	var stages []string
	for i := 0; i < 3; i++ {
		dl := recv(t, c)
		stages = append(stages, string(dl.Message.Stage))
	}
	assert.Equal(t, []string{"uploading", "processing", "complete"}, stages)

	cancel()
	require.NoError(t, <-done)
}

func TestWebsocketDialer_HandshakeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, err := WebsocketDialer{HandshakeTimeout: time.Second}.Dial(context.Background(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake status 403")
}
