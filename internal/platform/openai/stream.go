package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
)

// Event kinds emitted by the completion service's streaming Responses API.
// Everything a consumer needs is decoded here once; downstream code never
// probes raw payloads.
const (
	KindTextDelta       = "text_delta"
	KindOutputTextDelta = "response.output_text.delta"
	KindOutputTextDone  = "response.output_text.done"
	KindOutputText      = "response.output_text"
)

// Event is one decoded streaming event. Delta carries incremental text,
// Text carries whole-text payloads (done/fallback shapes).
type Event struct {
	Kind  string
	Delta string
	Text  string
}

// IsToolEvent reports whether the event is a tool-call marker. Tool events
// contribute no text but must not interrupt the stream.
func (e Event) IsToolEvent() bool {
	if strings.HasPrefix(e.Kind, "response.code_interpreter_call") {
		return true
	}
	switch e.Kind {
	case "tool_call", "tool_result", "response.output_item.added", "response.output_item.done":
		return true
	}
	return false
}

// ExtractDelta returns the text delta an event contributes given the text
// accumulated so far. First matching rule wins; unknown kinds that carry a
// text field fall back to it, everything else contributes nothing.
func ExtractDelta(ev Event, accumulated string) string {
	switch {
	case ev.Kind == KindTextDelta:
		return ev.Delta
	case ev.Kind == KindOutputTextDelta:
		return ev.Delta
	case ev.Kind == KindOutputTextDone:
		// The done event repeats the full text; emit only the suffix not
		// yet streamed so nothing is duplicated.
		if len(ev.Text) > len(accumulated) {
			return ev.Text[len(accumulated):]
		}
		return ""
	case ev.Kind == KindOutputText:
		return ev.Text
	case ev.IsToolEvent():
		return ""
	default:
		return ev.Text
	}
}

// Stream is a finite, non-restartable sequence of events read from an open
// streaming response. Usage follows the bufio.Scanner pattern:
//
//	for stream.Next() {
//	    ev := stream.Event()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
type Stream struct {
	body io.ReadCloser
	br   *bufio.Reader

	ev     Event
	err    error
	closed bool
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, br: bufio.NewReader(body)}
}

// Next advances to the next decodable event. It returns false at the end
// of the sequence or on error; each event is surfaced as soon as its
// terminating blank line is read, nothing is buffered ahead.
func (s *Stream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}

	var dataLines []string
	for {
		line, err := s.br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.close()
				return false
			}
			s.err = apierr.Upstream(err)
			s.close()
			return false
		}
		line = strings.TrimRight(line, "\r\n")

		// Blank line terminates one SSE event.
		if line == "" {
			if len(dataLines) == 0 {
				continue
			}
			data := strings.Join(dataLines, "\n")
			dataLines = nil

			if strings.TrimSpace(data) == "" || strings.TrimSpace(data) == "[DONE]" {
				s.close()
				return false
			}

			ev, ok, err := decodeEvent(data)
			if err != nil {
				s.err = err
				s.close()
				return false
			}
			if !ok {
				continue
			}
			s.ev = ev
			return true
		}

		if strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// event: lines are redundant with the payload's type field.
	}
}

func (s *Stream) Event() Event { return s.ev }

func (s *Stream) Err() error { return s.err }

func (s *Stream) Close() error {
	s.close()
	return nil
}

func (s *Stream) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.body != nil {
		_ = s.body.Close()
	}
}

type eventPayload struct {
	Type    string          `json:"type"`
	Delta   json.RawMessage `json:"delta,omitempty"`
	Text    string          `json:"text,omitempty"`
	Refusal string          `json:"refusal,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func decodeEvent(data string) (Event, bool, error) {
	var p eventPayload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		// Non-JSON keep-alives are skipped, not fatal.
		return Event{}, false, nil
	}
	if p.Error != nil && strings.TrimSpace(p.Error.Message) != "" {
		return Event{}, false, apierr.Upstream(fmt.Errorf("stream error: %s", p.Error.Message))
	}
	if strings.TrimSpace(p.Refusal) != "" {
		return Event{}, false, apierr.Upstream(fmt.Errorf("model refused: %s", p.Refusal))
	}

	ev := Event{Kind: strings.TrimSpace(p.Type), Text: p.Text}
	if len(p.Delta) > 0 {
		// delta is either a bare string or an object with a nested text
		// field, depending on the event kind.
		var ds string
		if err := json.Unmarshal(p.Delta, &ds); err == nil {
			ev.Delta = ds
		} else {
			var dn struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(p.Delta, &dn); err == nil {
				ev.Delta = dn.Text
			}
		}
	}
	return ev, true, nil
}

func (c *client) Stream(ctx context.Context, instructions string, input string) (*Stream, error) {
	req := responsesRequest{
		Model:        c.model,
		Instructions: strings.TrimSpace(instructions),
		Input:        input,
		Stream:       true,
	}
	return c.openStream(ctx, req)
}

func (c *client) StreamWithFile(ctx context.Context, instructions string, input string, file io.Reader, filename string) (*Stream, error) {
	tool, err := c.prepareCodeInterpreterTool(ctx, file, filename)
	if err != nil {
		return nil, err
	}
	req := responsesRequest{
		Model:        c.model,
		Instructions: strings.TrimSpace(instructions),
		Input:        input,
		Tools:        []map[string]any{tool},
		Stream:       true,
	}
	return c.openStream(ctx, req)
}

func (c *client) openStream(ctx context.Context, body responsesRequest) (*Stream, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/responses", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, apierr.Upstream(&httpError{StatusCode: resp.StatusCode, Body: string(raw)})
	}
	return newStream(resp.Body), nil
}
