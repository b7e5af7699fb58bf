// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/ingestwatch/internal/config"
	"github.com/ManuGH/ingestwatch/internal/export"
	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend serves /health, /upload and the progress websocket. Every
// accepted upload is followed by a scripted progress sequence on the stream.
type fakeBackend struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    *websocket.Conn
	uploads map[string][]byte
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{uploads: make(map[string][]byte)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /upload", b.handleUpload)
	mux.HandleFunc("/ws/progress", b.handleStream)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	b.mu.Lock()
	b.conn = ws
	b.mu.Unlock()
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *fakeBackend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.FormValue("sessionId")
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(f)
	_ = f.Close()

	b.mu.Lock()
	b.uploads[id] = data
	b.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)

	// The client opens the stream before submitting; the server side may
	// register the connection a moment later.
	var conn *websocket.Conn
	for deadline := time.Now().Add(2 * time.Second); conn == nil && time.Now().Before(deadline); {
		b.mu.Lock()
		conn = b.conn
		b.mu.Unlock()
		if conn == nil {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if conn == nil {
		return
	}
	frames := []string{
		fmt.Sprintf(`{"sessionId":%q,"stage":"uploading","percent":50}`, id),
		fmt.Sprintf(`{"sessionId":%q,"stage":"processing","percent":80,"message":"Embedding chunks"}`, id),
		fmt.Sprintf(`{"sessionId":%q,"stage":"complete","percent":100}`, id),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range frames {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
	}
}

func testConfig(t *testing.T, backendURL string) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Services = []config.ServiceConfig{
		{ID: "api", DisplayName: "API", Endpoint: backendURL + "/health"},
		{ID: "llm", DisplayName: "LLM", Endpoint: "http://127.0.0.1:1/health"},
	}
	cfg.API.BaseURL = backendURL
	cfg.Stream.URL = config.DeriveStreamURL(backendURL)
	cfg.Monitor.ProbeTimeout = time.Second
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Export.Path = filepath.Join(t.TempDir(), "status.json")
	return cfg
}

func TestApp_UploadLifecycle(t *testing.T) {
	backend := newFakeBackend(t)
	cfg := testConfig(t, backend.srv.URL)

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-app.Manager.Ready():
	case err := <-done:
		t.Fatalf("app stopped early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("local server not ready")
	}
	base := "http://" + app.Manager.Addr()

	// Service board settles: api online, llm offline.
	require.Eventually(t, func() bool {
		board := app.Monitor.Snapshot()
		return board[0].Status == health.StatusOnline && board[1].Status == health.StatusOffline
	}, 5*time.Second, 20*time.Millisecond)

	// Select a file through the local surface.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = io.WriteString(fw, "hello ingest")
	require.NoError(t, mw.Close())

	resp, err := http.Post(base+"/api/sessions", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	var sel struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sel))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, sel.IDs, 1)
	id := sel.IDs[0]

	require.Eventually(t, func() bool {
		s, ok := app.Engine.Registry.Get(id)
		return ok && s.State == session.StateComplete
	}, 10*time.Second, 20*time.Millisecond)

	s, _ := app.Engine.Registry.Get(id)
	assert.Equal(t, 100, s.ProgressPercent)
	assert.Nil(t, s.Error)

	backend.mu.Lock()
	assert.Equal(t, "hello ingest", string(backend.uploads[id]))
	backend.mu.Unlock()

	// The export mirrors the completed session.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(cfg.Export.Path)
		if err != nil {
			return false
		}
		var doc export.Document
		if json.Unmarshal(data, &doc) != nil || len(doc.Sessions) != 1 {
			return false
		}
		return doc.Sessions[0].State == session.StateComplete && len(doc.Services) == 2
	}, 5*time.Second, 20*time.Millisecond)

	// Acknowledge removes it.
	req, _ := http.NewRequest(http.MethodDelete, base+"/api/sessions/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, app.Engine.Registry.Snapshot())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestNewApp_RejectsBadStream(t *testing.T) {
	cfg := config.Defaults()
	cfg.Services = []config.ServiceConfig{{ID: "api", DisplayName: "API", Endpoint: "http://localhost/health"}}
	cfg.Stream.URL = ""
	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestRequestLimit(t *testing.T) {
	assert.Equal(t, int64(0), requestLimit(0))
	assert.Equal(t, int64(8<<20+1<<20), requestLimit(1<<20))
}
