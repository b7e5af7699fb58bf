// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestBoard(t *testing.T) {
	got := Board([]monitor.ServiceStatus{
		{ID: "api", DisplayName: "API", Status: health.StatusOnline},
		{ID: "llm", DisplayName: "LLM", Icon: "*", Status: health.StatusOffline},
	})
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "API "))
	assert.True(t, strings.HasSuffix(lines[0], "online"))
	assert.True(t, strings.HasPrefix(lines[1], "* LLM"))
	assert.True(t, strings.HasSuffix(lines[1], "offline"))
}

func TestSessionLine(t *testing.T) {
	s := session.New("s1", session.FileInfo{Name: "report.pdf"}, time.Now())
	s.State = session.StateFailed
	s.ProgressPercent = 40
	s.Message = "Embedding chunks"
	s.Error = &session.ErrorDetail{Kind: session.KindPipeline, Code: "embedding_error", Message: "Embedding model unavailable"}

	assert.Equal(t, "report.pdf [failed 40%] Embedding chunks error: Embedding model unavailable", SessionLine(s))

	s.Error = nil
	s.State = session.StateProcessing
	s.Warning = session.StreamGap()
	assert.Contains(t, SessionLine(s), "warning: Progress stream reconnected")
}

func TestRenderer_PlainPrintsChangesOnly(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	board := []monitor.ServiceStatus{{ID: "api", DisplayName: "API", Status: health.StatusChecking}}
	r.Services(board)
	r.Services(board)

	s := session.New("s1", session.FileInfo{Name: "a.txt"}, time.Now())
	r.Sessions([]session.Session{s})
	s.State = session.StateUploading
	s.ProgressPercent = 10
	r.Sessions([]session.Session{s})
	r.Sessions([]session.Session{s})

	board[0].Status = health.StatusOnline
	r.Services(board)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "checking")
	assert.Contains(t, lines[1], "[queued 0%]")
	assert.Contains(t, lines[2], "[uploading 10%]")
	assert.Contains(t, lines[3], "online")
	assert.NotContains(t, buf.String(), "\033[", "no escape codes outside a terminal")
}

func TestRenderer_Finish(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	done := session.New("a", session.FileInfo{Name: "a.txt"}, time.Now())
	done.State = session.StateComplete
	failed := session.New("b", session.FileInfo{Name: "b.txt"}, time.Now())
	failed.State = session.StateFailed
	r.Sessions([]session.Session{done, failed})
	buf.Reset()

	r.Finish()
	assert.Equal(t, "\nDone: 1/2 complete, 1 failed\n", buf.String())
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[--------------------]", progressBar(0))
	assert.Equal(t, "[##########----------]", progressBar(50))
	assert.Equal(t, "[####################]", progressBar(100))
	assert.Equal(t, "[####################]", progressBar(150))
}
