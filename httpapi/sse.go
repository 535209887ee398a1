package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter serializes node_update/complete/error frames onto an
// http.ResponseWriter as Server-Sent Events (§6), flushing after every
// frame so a connected client observes progress incrementally rather than
// buffered until the response closes.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

// newSSEWriter prepares w for event-stream output. Returns false if the
// underlying ResponseWriter cannot be flushed incrementally.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, f: f}, true
}

// send writes one named SSE frame with a JSON-encoded payload.
func (s *sseWriter) send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, raw); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
