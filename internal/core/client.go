package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Common errors.
var (
	ErrNotFound     = errors.New("client: not found")
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrConflict     = errors.New("client: conflict")
	ErrServerError  = errors.New("client: server error")
)

// Options configures the API client.
type Options struct {
	// BaseURL of the ferry server, without a trailing slash.
	BaseURL string

	// OwnerID sent as the X-Owner-ID header on every request.
	OwnerID string

	// Timeout for individual requests.
	// Default: 60s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration
}

// Session describes an open upload session as reported by the server.
type Session struct {
	SessionID  string `json:"session_id"`
	ChunkCount int    `json:"chunk_count"`
	TotalSize  int64  `json:"total_size"`
}

// ChunkReceipt is the server's acknowledgement of one stored chunk.
type ChunkReceipt struct {
	SessionID      string  `json:"session_id"`
	ReceivedChunks []int32 `json:"received_chunks"`
}

// Artifact describes a finished upload.
type Artifact struct {
	ArtifactID  string `json:"artifact_id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	DownloadURL string `json:"download_url"`
}

// UploadStatus reports session progress.
type UploadStatus struct {
	SessionID      string  `json:"session_id"`
	ChunkCount     int     `json:"chunk_count"`
	ReceivedChunks []int32 `json:"received_chunks"`
	MissingChunks  []int32 `json:"missing_chunks"`
	IsCompleted    bool    `json:"is_completed"`
	Percent        int     `json:"percent"`
}

// Client talks to the ferry upload API. Retryable failures (network
// errors and 5xx responses) are retried with exponential backoff and
// jitter; 4xx responses are returned immediately.
type Client struct {
	http *http.Client
	opts Options
}

// NewClient creates a new API client with the given options.
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 5
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.RetryMaxBackoff == 0 {
		opts.RetryMaxBackoff = 30 * time.Second
	}

	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
	}
}

// Initialize opens a new upload session.
func (c *Client) Initialize(ctx context.Context, totalSize int64, chunkCount int) (*Session, error) {
	body := map[string]any{"total_size": totalSize, "chunk_count": chunkCount}
	var session Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/uploads", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// PutChunk uploads one chunk payload.
func (c *Client) PutChunk(ctx context.Context, sessionID string, index int, payload []byte) (*ChunkReceipt, error) {
	path := fmt.Sprintf("/api/uploads/%s/chunks/%d", sessionID, index)
	var receipt ChunkReceipt
	if err := c.doRaw(ctx, http.MethodPut, path, payload, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Finalize assembles the session into an artifact.
func (c *Client) Finalize(ctx context.Context, sessionID, name, contentType string) (*Artifact, error) {
	path := fmt.Sprintf("/api/uploads/%s/complete", sessionID)
	body := map[string]any{"name": name, "content_type": contentType}
	var artifact Artifact
	if err := c.doJSON(ctx, http.MethodPost, path, body, &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Status reports session progress.
func (c *Client) Status(ctx context.Context, sessionID string) (*UploadStatus, error) {
	var status UploadStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/uploads/"+sessionID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Cancel discards the session and its staged chunks.
func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/uploads/"+sessionID, nil, nil)
}

// Download streams an artifact. A non-empty rangeHeader is passed through
// verbatim (e.g. "bytes=0-1023"). The caller must close the returned body.
func (c *Client) Download(ctx context.Context, artifactID, rangeHeader string) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/d/"+artifactID, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-Owner-ID", c.opts.OwnerID)
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", ErrServerError, resp.Status)
			continue
		}
		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, err
		}

		return resp.Body, nil
	}

	return nil, fmt.Errorf("download failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// doJSON sends a JSON request body and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	return c.do(ctx, method, path, payload, "application/json", out)
}

// doRaw sends an opaque binary body.
func (c *Client) doRaw(ctx context.Context, method, path string, payload []byte, out any) error {
	return c.do(ctx, method, path, payload, "application/octet-stream", out)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, contentType string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-Owner-ID", c.opts.OwnerID)
		if payload != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Server errors are retryable
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", ErrServerError, resp.Status)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			msg := readErrorMessage(resp.Body)
			resp.Body.Close()
			if msg != "" {
				return fmt.Errorf("%w: %s", err, msg)
			}
			return err
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				resp.Body.Close()
				return fmt.Errorf("decode response: %w", err)
			}
		}
		resp.Body.Close()
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.opts.RetryAttempts+1, lastErr)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusConflict:
		return ErrConflict
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// readErrorMessage pulls the "error" field out of a JSON error body.
func readErrorMessage(r io.Reader) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(r, 4096)).Decode(&body); err != nil {
		return ""
	}
	return body.Error
}
