// Package sse implements the simplified server-sent-events framing used
// between the server and its chat clients: every frame is a data line
// carrying a JSON object with a content field.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Frame is the wire shape of one event.
type Frame struct {
	Content string `json:"content"`
}

// Writer emits frames on an HTTP response.
type Writer struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewWriter prepares w for event streaming and returns a Writer. It
// reports an error when the response does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("sse: response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return &Writer{w: w, f: f}, nil
}

// Send writes one content frame and flushes it.
func (s *Writer) Send(content string) error {
	b, err := json.Marshal(Frame{Content: content})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}
