// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package render draws the service board and upload sessions on a terminal.
// On a TTY the view is redrawn in place; otherwise one line is printed per
// observable change so the output stays readable in logs and pipes.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	"github.com/ManuGH/ingestwatch/internal/session"
	"golang.org/x/term"
)

const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiYel   = "\033[33m"
	ansiDim   = "\033[90m"
	clearLine = "\033[2K"
)

// Renderer writes snapshots to w. It is safe for concurrent use.
type Renderer struct {
	mu         sync.Mutex
	w          io.Writer
	tty        bool
	linesDrawn int
	services   []monitor.ServiceStatus
	sessions   []session.Session
	lastPlain  map[string]string
}

// New returns a renderer for w. In-place redrawing is used only when w is a
// terminal.
func New(w io.Writer) *Renderer {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &Renderer{w: w, tty: tty, lastPlain: make(map[string]string)}
}

// Services replaces the service board and redraws.
func (r *Renderer) Services(list []monitor.ServiceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = list
	r.render()
}

// Sessions replaces the session list and redraws.
func (r *Renderer) Sessions(list []session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = list
	r.render()
}

// Finish prints a summary of the sessions seen last.
func (r *Renderer) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var complete, failed int
	for _, s := range r.sessions {
		switch s.State {
		case session.StateComplete:
			complete++
		case session.StateFailed:
			failed++
		}
	}
	fmt.Fprintf(r.w, "\nDone: %d/%d complete", complete, len(r.sessions))
	if failed > 0 {
		fmt.Fprintf(r.w, ", %d failed", failed)
	}
	fmt.Fprintln(r.w)
}

func (r *Renderer) render() {
	if r.tty {
		r.renderTTY()
		return
	}
	r.renderPlain()
}

func (r *Renderer) renderTTY() {
	if r.linesDrawn > 0 {
		fmt.Fprintf(r.w, "\033[%dA", r.linesDrawn)
	}

	var buf strings.Builder
	lines := 0
	for _, s := range r.services {
		buf.WriteString(clearLine)
		buf.WriteString(colorService(s))
		buf.WriteByte('\n')
		lines++
	}
	if len(r.services) > 0 && len(r.sessions) > 0 {
		buf.WriteString(clearLine + "\n")
		lines++
	}
	for _, s := range r.sessions {
		buf.WriteString(clearLine)
		buf.WriteString(colorSession(s))
		buf.WriteByte('\n')
		lines++
	}

	fmt.Fprint(r.w, buf.String())
	r.linesDrawn = lines
}

// renderPlain prints only lines whose text changed since the last render.
func (r *Renderer) renderPlain() {
	for _, s := range r.services {
		r.printIfChanged("service/"+s.ID, ServiceLine(s))
	}
	for _, s := range r.sessions {
		r.printIfChanged("session/"+s.ID, SessionLine(s))
	}
}

func (r *Renderer) printIfChanged(key, line string) {
	if r.lastPlain[key] == line {
		return
	}
	r.lastPlain[key] = line
	fmt.Fprintln(r.w, line)
}

// Board formats a service board, one line per service.
func Board(list []monitor.ServiceStatus) string {
	var b strings.Builder
	for _, s := range list {
		b.WriteString(ServiceLine(s))
		b.WriteByte('\n')
	}
	return b.String()
}

// ServiceLine formats one service without colors.
func ServiceLine(s monitor.ServiceStatus) string {
	name := s.DisplayName
	if s.Icon != "" {
		name = s.Icon + " " + name
	}
	return fmt.Sprintf("%-24s %s", name, s.Status)
}

// SessionLine formats one session without colors.
func SessionLine(s session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s %d%%]", s.File.Name, s.State, s.ProgressPercent)
	if s.Message != "" {
		b.WriteString(" ")
		b.WriteString(s.Message)
	}
	if s.Error != nil {
		fmt.Fprintf(&b, " error: %s", s.Error.Message)
	}
	if s.Warning != nil {
		fmt.Fprintf(&b, " warning: %s", s.Warning.Message)
	}
	return b.String()
}

func colorService(s monitor.ServiceStatus) string {
	color := ansiDim
	switch s.Status {
	case health.StatusOnline:
		color = ansiGreen
	case health.StatusOffline:
		color = ansiRed
	}
	return fmt.Sprintf("  %s%s%s", color, ServiceLine(s), ansiReset)
}

func colorSession(s session.Session) string {
	color := ansiYel
	switch s.State {
	case session.StateComplete:
		color = ansiGreen
	case session.StateFailed:
		color = ansiRed
	case session.StateQueued:
		color = ansiDim
	}
	return fmt.Sprintf("  %s%s%s %s", ansiBold, progressBar(s.ProgressPercent), ansiReset, color+SessionLine(s)+ansiReset)
}

func progressBar(percent int) string {
	const width = 20
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
