// Package sse writes server-sent events for streaming chat responses.
//
// The wire format is data-only: every event is a `data:` line carrying a
// JSON object, and the stream ends with the literal `data: [DONE]`. Event
// types are distinguished by which JSON key is present, not by SSE event
// names.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// doneMarker terminates the stream.
const doneMarker = "[DONE]"

// Writer streams events over an http.ResponseWriter.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for event streaming and sends the SSE headers.
// Returns an error if the underlying writer cannot flush, since buffered
// SSE defeats the point.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// Tells nginx-style proxies not to buffer the stream.
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

type conversationEvent struct {
	ConversationID string `json:"conversationId"`
}

type contentEvent struct {
	Content string `json:"content"`
}

type titleEvent struct {
	Title string `json:"title"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// Conversation announces which conversation the turn belongs to. Sent first
// so clients can route subsequent events.
func (s *Writer) Conversation(id string) error {
	return s.writeJSON(conversationEvent{ConversationID: id})
}

// Content delivers a chunk of assistant text.
func (s *Writer) Content(text string) error {
	return s.writeJSON(contentEvent{Content: text})
}

// Title delivers a newly generated conversation title.
func (s *Writer) Title(title string) error {
	return s.writeJSON(titleEvent{Title: title})
}

// Error delivers a user-facing error message. The stream stays open; callers
// follow with Done.
func (s *Writer) Error(message string) error {
	return s.writeJSON(errorEvent{Error: message})
}

// Done terminates the stream.
func (s *Writer) Done() error {
	return s.writeRaw(doneMarker)
}

func (s *Writer) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return s.writeRaw(string(data))
}

func (s *Writer) writeRaw(data string) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	s.flusher.Flush()
	return nil
}
