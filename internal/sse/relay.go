package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/openai"
)

// Frame is one client-facing stream event. A normal frame carries content
// with done=false; the terminal frame is empty with done=true; failures
// are reported in-band with an error message since headers are already
// committed once streaming begins.
type Frame struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// ErrorFrame terminates a failed stream in-band.
type ErrorFrame struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

// EventSource is the completion-side event sequence the relay consumes.
// *openai.Stream satisfies it.
type EventSource interface {
	Next() bool
	Event() openai.Event
	Err() error
	Close() error
}

// Flusher pairs the response writer with its flusher so every frame
// reaches the client as soon as it is produced.
type Flusher interface {
	Write(p []byte) (int, error)
	Flush()
}

// WriteHeaders commits the SSE response headers.
func WriteHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// Relay adapts the completion event sequence into client frames and
// persists the assembled text exactly once at the end.
//
// Each event contributes a delta per the extraction rules; non-empty
// deltas are accumulated and forwarded immediately. On normal exhaustion
// the persistence callback runs once with the trimmed full text (if any),
// then a terminal done frame is written. If the source fails or the
// client disconnects, the callback is never invoked so truncated answers
// are not saved silently.
func Relay(ctx context.Context, w Flusher, src EventSource, log *logger.Logger, onComplete func(string) error) {
	defer src.Close()

	var full strings.Builder
	for src.Next() {
		if ctx.Err() != nil {
			log.Debug("Client disconnected mid-stream, dropping partial response")
			return
		}
		delta := openai.ExtractDelta(src.Event(), full.String())
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := writeFrame(w, Frame{Content: delta}); err != nil {
			log.Debug("Client write failed mid-stream, dropping partial response", "error", err)
			return
		}
	}

	if err := src.Err(); err != nil {
		log.Warn("Completion stream failed", "error", err)
		_ = writeFrame(w, ErrorFrame{Error: err.Error(), Done: true})
		return
	}

	if text := strings.TrimSpace(full.String()); text != "" && onComplete != nil {
		if err := onComplete(text); err != nil {
			log.Error("Failed to persist completed response", "error", err)
		}
	}
	_ = writeFrame(w, Frame{Done: true})
}

func writeFrame(w Flusher, f any) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	w.Flush()
	return nil
}
