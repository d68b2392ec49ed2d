package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/healthpredictor/healthpredictor-backend/internal/pkg/httpx"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/apierr"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/envutil"
	"github.com/healthpredictor/healthpredictor-backend/internal/platform/logger"
)

// Client wraps the completion service's Responses API. All calls are
// stateless: every request carries its full instructions and input, no
// server-side assistant or thread resources are created.
type Client interface {
	// GenerateText runs a non-streaming completion and returns the first
	// textual content element of the response output.
	GenerateText(ctx context.Context, instructions string, input string) (string, error)

	// GenerateTextWithFile uploads the file, attaches it to a
	// code-execution tool and then completes. The upload is a hard
	// dependency: if it fails the completion is never attempted.
	GenerateTextWithFile(ctx context.Context, instructions string, input string, file io.Reader, filename string) (string, error)

	// Stream opens a streaming completion. The returned Stream yields
	// events as they arrive from the network; it is finite and cannot be
	// restarted.
	Stream(ctx context.Context, instructions string, input string) (*Stream, error)

	// StreamWithFile is GenerateTextWithFile with a streaming final call.
	StreamWithFile(ctx context.Context, instructions string, input string, file io.Reader, filename string) (*Stream, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	maxRetries int

	// Newer deployments of the completion service expect files to be
	// placed in an explicit container resource instead of the files API.
	useContainerUpload bool
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.String("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimRight(envutil.String("OPENAI_BASE_URL", "https://api.openai.com"), "/")
	model := envutil.String("OPENAI_MODEL", "gpt-4o-mini")
	timeoutSec := envutil.Int("OPENAI_TIMEOUT_SECONDS", 180)
	maxRetries := envutil.Int("OPENAI_MAX_RETRIES", 4)
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &client{
		log:                log.With("service", "OpenAIClient"),
		baseURL:            baseURL,
		apiKey:             apiKey,
		model:              model,
		httpClient:         &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:         maxRetries,
		useContainerUpload: envutil.Bool("OPENAI_USE_CONTAINER_UPLOAD", false),
	}, nil
}

// WithModel returns a client that uses the provided model. An empty model
// returns the base client unchanged.
func WithModel(base Client, model string) Client {
	model = strings.TrimSpace(model)
	if base == nil || model == "" {
		return base
	}
	if c, ok := base.(*client); ok {
		clone := *c
		clone.model = model
		return &clone
	}
	return base
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Responses API --------------------

type responsesRequest struct {
	Model        string           `json:"model"`
	Instructions string           `json:"instructions,omitempty"`
	Input        string           `json:"input"`
	Tools        []map[string]any `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

// extractOutputText tries the structured message shape first and falls
// back to the flat top-level text field used by older deployments.
func extractOutputText(resp responsesResponse) string {
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, el := range item.Content {
			if el.Text != "" {
				return el.Text
			}
		}
	}
	return resp.Text
}

func (c *client) GenerateText(ctx context.Context, instructions string, input string) (string, error) {
	req := responsesRequest{
		Model:        c.model,
		Instructions: strings.TrimSpace(instructions),
		Input:        input,
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return "", apierr.Upstream(err)
	}
	if resp.Refusal != "" {
		return "", apierr.Upstream(fmt.Errorf("model refused: %s", resp.Refusal))
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", apierr.Upstream(fmt.Errorf("no output text found in response"))
	}
	return text, nil
}

func (c *client) GenerateTextWithFile(ctx context.Context, instructions string, input string, file io.Reader, filename string) (string, error) {
	tool, err := c.prepareCodeInterpreterTool(ctx, file, filename)
	if err != nil {
		return "", err
	}

	req := responsesRequest{
		Model:        c.model,
		Instructions: strings.TrimSpace(instructions),
		Input:        input,
		Tools:        []map[string]any{tool},
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return "", apierr.Upstream(err)
	}
	if resp.Refusal != "" {
		return "", apierr.Upstream(fmt.Errorf("model refused: %s", resp.Refusal))
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", apierr.Upstream(fmt.Errorf("no output text found in response"))
	}
	return text, nil
}

// prepareCodeInterpreterTool uploads the file and returns the tool entry
// referencing it. Upload failures abort the whole operation.
func (c *client) prepareCodeInterpreterTool(ctx context.Context, file io.Reader, filename string) (map[string]any, error) {
	if c.useContainerUpload {
		containerID, err := c.createContainer(ctx, filename)
		if err != nil {
			return nil, apierr.Upstream(fmt.Errorf("create container: %w", err))
		}
		if _, err := c.uploadContainerFile(ctx, containerID, file, filename); err != nil {
			return nil, apierr.Upstream(fmt.Errorf("upload container file: %w", err))
		}
		return map[string]any{
			"type":      "code_interpreter",
			"container": containerID,
		}, nil
	}

	fileID, err := c.uploadFile(ctx, file, filename)
	if err != nil {
		return nil, apierr.Upstream(fmt.Errorf("upload file: %w", err))
	}
	return map[string]any{
		"type": "code_interpreter",
		"container": map[string]any{
			"type":     "auto",
			"file_ids": []string{fileID},
		},
	}, nil
}

func (c *client) uploadFile(ctx context.Context, file io.Reader, filename string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doMultipart(ctx, "/v1/files", file, filename, map[string]string{"purpose": "assistants"}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("file upload returned no id")
	}
	return out.ID, nil
}

func (c *client) createContainer(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]any{"name": strings.TrimSpace(name)}
	if err := c.do(ctx, "POST", "/v1/containers", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("container create returned no id")
	}
	return out.ID, nil
}

func (c *client) uploadContainerFile(ctx context.Context, containerID string, file io.Reader, filename string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	path := "/v1/containers/" + containerID + "/files"
	if err := c.doMultipart(ctx, path, file, filename, nil, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *client) doMultipart(ctx context.Context, path string, file io.Reader, filename string, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
