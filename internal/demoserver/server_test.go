package demoserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuin/radikari-chat-widget/internal/transport"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func createThread(t *testing.T, baseURL, tenant string) transport.Thread {
	t.Helper()
	resp, err := http.Post(baseURL+"/ephemeral/tenants/"+tenant+"/threads", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Content transport.Thread `json:"content"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload.Content
}

func TestCreateThread(t *testing.T) {
	_, ts := newTestServer(t, Config{ThreadTTL: time.Minute})

	thread := createThread(t, ts.URL, "acme")
	assert.True(t, strings.HasPrefix(thread.ThreadID, "thr_"))
	assert.Equal(t, "acme", thread.TenantID)
	assert.Greater(t, thread.ExpiresAt, time.Now().UnixMilli())
}

func streamOnce(t *testing.T, baseURL, tenant, threadID, text string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": text}},
	})
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost,
		baseURL+"/ephemeral/tenants/"+tenant+"/threads/"+threadID+"/stream",
		bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestStream_EmitsOrderedTextDeltas(t *testing.T) {
	_, ts := newTestServer(t, Config{ThreadTTL: time.Minute, FrameDelay: time.Millisecond})
	thread := createThread(t, ts.URL, "acme")

	resp := streamOnce(t, ts.URL, "acme", thread.ThreadID, "hello")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var content strings.Builder
	sawUnknownType := false
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		switch frame["type"] {
		case "text-delta":
			content.WriteString(frame["delta"].(string))
		case "thread-info":
			sawUnknownType = true
		}
	}
	require.NoError(t, scanner.Err())

	assert.Contains(t, content.String(), `You said: "hello"`)
	assert.True(t, sawUnknownType, "stream should carry frames of unknown types")
}

func TestStream_UnknownThreadIs404(t *testing.T) {
	_, ts := newTestServer(t, Config{ThreadTTL: time.Minute})

	resp := streamOnce(t, ts.URL, "acme", "thr_bogus", "hi")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_ExpiredThreadIs404(t *testing.T) {
	srv, ts := newTestServer(t, Config{ThreadTTL: time.Minute, FrameDelay: time.Millisecond})
	thread := createThread(t, ts.URL, "acme")
	srv.Expire(thread.ThreadID)

	resp := streamOnce(t, ts.URL, "acme", thread.ThreadID, "hi")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_TTLIsEnforced(t *testing.T) {
	_, ts := newTestServer(t, Config{ThreadTTL: 10 * time.Millisecond, FrameDelay: time.Millisecond})
	thread := createThread(t, ts.URL, "acme")

	time.Sleep(30 * time.Millisecond)

	resp := streamOnce(t, ts.URL, "acme", thread.ThreadID, "hi")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_WrongTenantIs404(t *testing.T) {
	_, ts := newTestServer(t, Config{ThreadTTL: time.Minute})
	thread := createThread(t, ts.URL, "acme")

	resp := streamOnce(t, ts.URL, "globex", thread.ThreadID, "hi")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_BadBodyIs400(t *testing.T) {
	_, ts := newTestServer(t, Config{ThreadTTL: time.Minute})
	thread := createThread(t, ts.URL, "acme")

	resp, err := http.Post(
		ts.URL+"/ephemeral/tenants/acme/threads/"+thread.ThreadID+"/stream",
		"application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, _ = io.Copy(io.Discard, resp.Body)
}
