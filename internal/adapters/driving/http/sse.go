package http

import (
	"fmt"
	"net/http"
	"strings"
)

// sseWriter frames server-sent events and flushes after each one.
// Write errors are ignored: a client that went away stops reading, and the
// chat turn keeps running server-side regardless.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &sseWriter{w: w, rc: http.NewResponseController(w)}
	s.flush()
	return s
}

// data sends an unnamed event. Newlines inside payload become
// continuation data lines, which clients join back with "\n".
func (s *sseWriter) data(payload string) {
	s.write("", payload)
}

// event sends a named event.
func (s *sseWriter) event(name, payload string) {
	s.write(name, payload)
}

func (s *sseWriter) write(name, payload string) {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	for line := range strings.SplitSeq(payload, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, _ = s.w.Write([]byte(b.String()))
	s.flush()
}

func (s *sseWriter) flush() {
	_ = s.rc.Flush()
}
