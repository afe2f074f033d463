// Package aiclient provides typed HTTP clients for the five external model
// services (computer vision, text→gloss, gloss→text, speech-to-text,
// text-to-speech). All clients share one http.Client with a single
// configured timeout and normalize failures into *APIError.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrInvalidJSON marks a 2xx response whose body is not a JSON object.
var ErrInvalidJSON = errors.New("invalid json response")

const maxErrorBody = 512

// APIError is the normalized error envelope for any adapter call. For 4xx
// responses Parsed carries the decoded JSON body so the orchestrator can
// inspect the service's own error payload; 5xx responses never populate it.
type APIError struct {
	Service string
	Status  int
	Body    string // excerpt, at most maxErrorBody bytes
	Parsed  map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Body)
}

// Client is the shared transport for all adapters.
type Client struct {
	http   *http.Client
	apiKey string
}

func New(timeout time.Duration, apiKey string) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:   &http.Client{Timeout: timeout},
		apiKey: apiKey,
	}
}

// postJSON POSTs a JSON body and decodes a JSON object response into out.
func (c *Client) postJSON(ctx context.Context, service, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	return c.do(req, service, out)
}

// postMultipart POSTs a multipart form with a single file field plus
// optional string fields.
func (c *Client) postMultipart(ctx context.Context, service, url, fileField, filename string, file io.Reader, fields map[string]string, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return fmt.Errorf("%s: build form: %w", service, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("%s: copy file: %w", service, err)
	}
	for k, v := range fields {
		if v != "" {
			mw.WriteField(k, v)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s: finish form: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", service, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	return c.do(req, service, out)
}

// postRaw POSTs a JSON body and returns the raw response bytes. Used by
// TTS, whose success responses are audio, not JSON.
func (c *Client) postRaw(ctx context.Context, service, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(service, resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(req *http.Request, service string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(service, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", service, err)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: %w: %s", service, ErrInvalidJSON, excerpt(body))
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func newAPIError(service string, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))

	apiErr := &APIError{
		Service: service,
		Status:  resp.StatusCode,
		Body:    excerpt(body),
	}

	// 4xx bodies are handed back parsed so the caller can decide.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		var parsed map[string]any
		if json.Unmarshal(body, &parsed) == nil {
			apiErr.Parsed = parsed
		}
	}
	return apiErr
}

func excerpt(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
