// Package transport performs the two remote operations of the chat API:
// creating an ephemeral thread and opening a streaming send. Every failure
// is translated into the package's typed errors before it reaches the
// caller; raw HTTP details stay here.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valuin/radikari-chat-widget/internal/logging"
)

// maxErrorBodyBytes bounds how much of an error response is read for the
// user-visible message.
const maxErrorBodyBytes = 4 << 10

// Thread is a server-side ephemeral conversation context. Expiry is
// enforced by the server; the client never checks ExpiresAt itself.
type Thread struct {
	ThreadID  string `json:"threadId"`
	TenantID  string `json:"tenantId"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Message is a single chat message as sent on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to one chat API origin.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the given API base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No overall timeout: the stream stays open for as long as the
		// server keeps sending. A host that wants a watchdog layers one
		// via the context.
		http: &http.Client{Timeout: 0},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// createThreadResponse mirrors the wire envelope of the thread endpoint.
type createThreadResponse struct {
	Content *Thread `json:"content"`
}

// CreateThread creates a fresh ephemeral thread for a tenant.
func (c *Client) CreateThread(ctx context.Context, tenantID string) (Thread, error) {
	url := fmt.Sprintf("%s/ephemeral/tenants/%s/threads", c.baseURL, tenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return Thread{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if IsCancelled(err) {
			return Thread{}, context.Canceled
		}
		return Thread{}, &RequestError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Thread{}, &RequestError{Status: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	var payload createThreadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Thread{}, &MalformedResponseError{Field: "content"}
	}
	if payload.Content == nil {
		return Thread{}, &MalformedResponseError{Field: "content"}
	}
	if payload.Content.ThreadID == "" {
		return Thread{}, &MalformedResponseError{Field: "content.threadId"}
	}

	logging.Debug().
		Str("tenant_id", tenantID).
		Str("thread_id", payload.Content.ThreadID).
		Dur("elapsed", time.Since(start)).
		Msg("thread created")

	return *payload.Content, nil
}

// sendMessageRequest is the wire body of the stream endpoint.
type sendMessageRequest struct {
	Messages []Message `json:"messages"`
}

// SendMessageStream opens a streaming send for a single user message and
// returns the live response body for incremental consumption. The body is
// not buffered or pre-read; the caller owns closing it. Cancelling ctx
// aborts both the pending request and subsequent body reads.
func (c *Client) SendMessageStream(ctx context.Context, tenantID, threadID, text string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/ephemeral/tenants/%s/threads/%s/stream", c.baseURL, tenantID, threadID)

	body, err := json.Marshal(sendMessageRequest{
		Messages: []Message{{Role: "user", Content: text}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		if IsCancelled(err) {
			return nil, context.Canceled
		}
		return nil, &RequestError{Status: 0, Message: err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		logging.Debug().Str("thread_id", threadID).Msg("stream rejected, thread gone")
		return nil, ErrThreadExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		defer resp.Body.Close()
		return nil, &RequestError{Status: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	return resp.Body, nil
}

// readErrorBody extracts server error text for RequestError messages.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
