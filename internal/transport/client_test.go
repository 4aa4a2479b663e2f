package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThread_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ephemeral/tenants/acme/threads", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": map[string]any{
				"threadId":  "thr_123",
				"tenantId":  "acme",
				"expiresAt": time.Now().Add(time.Hour).UnixMilli(),
			},
		})
	}))
	defer srv.Close()

	thread, err := New(srv.URL).CreateThread(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "thr_123", thread.ThreadID)
	assert.Equal(t, "acme", thread.TenantID)
	assert.NotZero(t, thread.ExpiresAt)
}

func TestCreateThread_MissingThreadIDIsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty content":   `{"content":{}}`,
		"no content":      `{}`,
		"empty thread id": `{"content":{"threadId":"","tenantId":"acme"}}`,
		"not json":        `<html>oops</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))
			defer srv.Close()

			_, err := New(srv.URL).CreateThread(context.Background(), "acme")
			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func TestCreateThread_NonSuccessIsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tenant disabled", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateThread(context.Background(), "acme")
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusForbidden, reqErr.Status)
	assert.Contains(t, reqErr.Message, "tenant disabled")
}

func TestSendMessageStream_ReturnsLiveBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ephemeral/tenants/acme/threads/thr_1/stream", r.URL.Path)

		var body struct {
			Messages []Message `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "hi", body.Messages[0].Content)

		_, _ = io.WriteString(w, "data: {\"type\":\"text-delta\",\"delta\":\"Hello\"}\n")
	}))
	defer srv.Close()

	body, err := New(srv.URL).SendMessageStream(context.Background(), "acme", "thr_1", "hi")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "text-delta")
}

func TestSendMessageStream_NotFoundIsThreadExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such thread", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).SendMessageStream(context.Background(), "acme", "thr_gone", "hi")
	assert.ErrorIs(t, err, ErrThreadExpired)
}

func TestSendMessageStream_OtherFailureCarriesServerText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).SendMessageStream(context.Background(), "acme", "thr_1", "hi")
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.Status)
	assert.Equal(t, "model overloaded", reqErr.Message)
}

func TestCancelledRequestIsContextCanceled(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := New(srv.URL).CreateThread(ctx, "acme")
	require.Error(t, err)
	assert.True(t, IsCancelled(err), "expected cancellation, got %v", err)
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(context.Canceled))
	assert.False(t, IsCancelled(errors.New("boom")))
	assert.False(t, IsCancelled(ErrThreadExpired))
	assert.False(t, IsCancelled(nil))
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	c := New("http://localhost:8089/")
	assert.Equal(t, "http://localhost:8089", c.BaseURL())
}
