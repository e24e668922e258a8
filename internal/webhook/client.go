// Package webhook provides the HTTP client used for all workflow-automation
// calls (scheduling and persistence endpoints). Transport and upstream failures
// are normalized into a uniform error-shaped map; the client never returns a Go
// error to its callers.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Client issues authenticated POST requests to named endpoints on a base URL.
type Client struct {
	baseURL string
	token   string

	mu     sync.Mutex
	client *http.Client
	closed bool
}

// NewClient returns a Client for the given base URL. token may be empty, in
// which case no Authorization header is ever sent.
func NewClient(baseURL, token string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// httpClient lazily creates the shared underlying client.
func (c *Client) httpClient() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		c.client = &http.Client{}
		c.closed = false
	}
	return c.client
}

// Call POSTs payload as JSON to {base_url}/{endpoint} and returns the decoded
// response body. All failure modes are reported in the returned map:
//
//	non-200       {"error": "HTTP <status>", "detail": <body text>}
//	timeout       {"error": "timeout", "detail": "Request timed out"}
//	anything else {"error": <error type>, "detail": <error text>}
func (c *Client) Call(ctx context.Context, endpoint string, payload map[string]any, timeout time.Duration) map[string]any {
	url := c.baseURL + "/" + endpoint

	body, err := json.Marshal(payload)
	if err != nil {
		return map[string]any{"error": errorName(err), "detail": err.Error()}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return map[string]any{"error": errorName(err), "detail": err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Info().Str("url", url).Interface("payload", payload).Msg("webhook call")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if isTimeout(err, reqCtx) {
			log.Error().Str("url", url).Dur("timeout", timeout).Msg("webhook timeout")
			return map[string]any{"error": "timeout", "detail": "Request timed out"}
		}
		log.Error().Err(err).Str("url", url).Msg("webhook transport error")
		return map[string]any{"error": errorName(err), "detail": err.Error()}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		detail := string(raw)
		log.Error().Int("status", resp.StatusCode).Str("body", detail).Msg("webhook error response")
		return map[string]any{"error": fmt.Sprintf("HTTP %d", resp.StatusCode), "detail": detail}
	}
	if readErr != nil {
		return map[string]any{"error": errorName(readErr), "detail": readErr.Error()}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{"error": errorName(err), "detail": err.Error()}
	}
	log.Debug().Interface("response", data).Msg("webhook success")
	return data
}

// Close releases the underlying connections. Safe to call repeatedly and
// before any request was made.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || c.closed {
		return
	}
	c.client.CloseIdleConnections()
	c.closed = true
}

func isTimeout(err error, ctx context.Context) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorName yields a stable short name for an error's type, mirroring the
// upstream contract of reporting the failure class rather than free text.
func errorName(err error) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
