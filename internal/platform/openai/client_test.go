package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("OPENAI_MAX_RETRIES", "0")

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateTextMessageShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		w.Write([]byte(`{
			"output": [
				{"type": "reasoning"},
				{"type": "message", "role": "assistant", "content": [
					{"type": "output_text", "text": "hello from the model"}
				]}
			]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.GenerateText(context.Background(), "be brief", "hi")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "hello from the model" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateTextFlatShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output": [], "text": "flat answer"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.GenerateText(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "flat answer" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateTextEmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"output": []}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.GenerateText(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestUploadFailureAbortsCompletion(t *testing.T) {
	var completions atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/files":
			http.Error(w, `{"error": "boom"}`, http.StatusInternalServerError)
		case "/v1/responses":
			completions.Add(1)
			w.Write([]byte(`{"text": "should never happen"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GenerateTextWithFile(context.Background(), "", "analyze", strings.NewReader("a,b\n1,2\n"), "data.csv")
	if err == nil {
		t.Fatal("expected upload failure to surface")
	}
	if n := completions.Load(); n != 0 {
		t.Fatalf("completion was attempted %d times after failed upload", n)
	}
}

func TestGenerateTextWithFileAttachesTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/files":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("multipart parse: %v", err)
			}
			if got := r.FormValue("purpose"); got != "assistants" {
				t.Errorf("purpose = %q", got)
			}
			w.Write([]byte(`{"id": "file-123"}`))
		case "/v1/responses":
			body := make([]byte, r.ContentLength)
			r.Body.Read(body)
			if !strings.Contains(string(body), "code_interpreter") || !strings.Contains(string(body), "file-123") {
				t.Errorf("request body missing tool wiring: %s", body)
			}
			w.Write([]byte(`{"text": "42 rows"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.GenerateTextWithFile(context.Background(), "", "how many rows", strings.NewReader("a\n1\n"), "data.csv")
	if err != nil {
		t.Fatalf("GenerateTextWithFile: %v", err)
	}
	if got != "42 rows" {
		t.Fatalf("got %q", got)
	}
}

func TestStreamOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"response.output_text.delta\",\"delta\":\"Hi\"}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	s, err := c.Stream(context.Background(), "", "hi")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	if !s.Next() {
		t.Fatalf("expected one event, err=%v", s.Err())
	}
	if got := s.Event().Delta; got != "Hi" {
		t.Fatalf("delta = %q", got)
	}
	if s.Next() {
		t.Fatal("expected stream to end after [DONE]")
	}
}

func TestStreamNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.Stream(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for non-2xx streaming response")
	}
}

func TestWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		if !strings.Contains(string(body), `"model":"small-model"`) {
			t.Errorf("expected overridden model in body: %s", body)
		}
		w.Write([]byte(`{"text": "ok"}`))
	}))
	defer srv.Close()

	base := newTestClient(t, srv.URL)
	c := WithModel(base, "small-model")
	if _, err := c.GenerateText(context.Background(), "", "hi"); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}

	if got := WithModel(base, ""); got != base {
		t.Fatal("empty model should return base client unchanged")
	}
}
