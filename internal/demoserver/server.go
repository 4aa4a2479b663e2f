// Package demoserver is a local stand-in for the remote chat API. It
// implements the ephemeral thread contract the widget core speaks, with
// real server-enforced thread expiry, so the CLI and integration tests
// have a live collaborator without network access.
package demoserver

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/valuin/radikari-chat-widget/internal/logging"
)

// Config holds demo server tunables.
type Config struct {
	// ThreadTTL is how long a thread stays valid. Streaming to an
	// expired or unknown thread returns 404, which is what drives the
	// client's recovery path.
	ThreadTTL time.Duration
	// FrameDelay paces the delta frames so streaming is visible.
	FrameDelay time.Duration
}

// DefaultConfig returns the tunables used by the CLI.
func DefaultConfig() Config {
	return Config{
		ThreadTTL:  10 * time.Minute,
		FrameDelay: 30 * time.Millisecond,
	}
}

type thread struct {
	id        string
	tenantID  string
	expiresAt time.Time
}

// Server holds the in-memory thread table.
type Server struct {
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	threads map[string]*thread
}

// New creates a demo server.
func New(cfg Config) *Server {
	if cfg.ThreadTTL <= 0 {
		cfg.ThreadTTL = DefaultConfig().ThreadTTL
	}
	return &Server{
		cfg:     cfg,
		log:     logging.Component("demoserver"),
		threads: make(map[string]*thread),
	}
}

// Handler returns the HTTP handler implementing the widget's API contract.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/ephemeral/tenants/{tenantID}", func(r chi.Router) {
		r.Post("/threads", s.createThread)
		r.Post("/threads/{threadID}/stream", s.streamMessage)
	})
	return r
}

// Expire forcibly expires a thread. Test hook for exercising recovery.
func (s *Server) Expire(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
}

func (s *Server) createThread(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if tenantID == "" {
		http.Error(w, "missing tenant id", http.StatusBadRequest)
		return
	}

	t := &thread{
		id:        "thr_" + ulid.MustNew(ulid.Now(), rand.Reader).String(),
		tenantID:  tenantID,
		expiresAt: time.Now().Add(s.cfg.ThreadTTL),
	}

	s.mu.Lock()
	s.threads[t.id] = t
	s.pruneLocked()
	s.mu.Unlock()

	s.log.Info().Str("tenant_id", tenantID).Str("thread_id", t.id).Msg("thread created")

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"content": map[string]any{
			"threadId":  t.id,
			"tenantId":  t.tenantID,
			"expiresAt": t.expiresAt.UnixMilli(),
		},
	})
}

func (s *Server) streamMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	threadID := chi.URLParam(r, "threadID")

	s.mu.Lock()
	t, ok := s.threads[threadID]
	if ok && (t.tenantID != tenantID || time.Now().After(t.expiresAt)) {
		delete(s.threads, threadID)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		s.log.Info().Str("thread_id", threadID).Msg("stream rejected, thread unknown or expired")
		http.Error(w, "thread not found", http.StatusNotFound)
		return
	}

	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Messages) == 0 {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	prompt := body.Messages[len(body.Messages)-1].Content

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	writeFrame := func(v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// Lead with a frame of a kind the client does not know, so consumers
	// prove they tolerate forward-compatible event types.
	writeFrame(map[string]any{"type": "thread-info", "threadId": threadID})

	for _, word := range replyFor(prompt) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(s.cfg.FrameDelay):
		}
		if !writeFrame(map[string]any{"type": "text-delta", "delta": word}) {
			return
		}
	}

	writeFrame(map[string]any{"type": "done"})
}

// replyFor produces the canned assistant reply, split into delta-sized
// fragments.
func replyFor(prompt string) []string {
	reply := fmt.Sprintf("You said: %q. This is a canned reply from the local demo server.", prompt)
	words := strings.Fields(reply)
	out := make([]string, 0, len(words))
	for i, w := range words {
		if i == 0 {
			out = append(out, w)
			continue
		}
		out = append(out, " "+w)
	}
	return out
}

// pruneLocked drops expired threads. Caller holds s.mu.
func (s *Server) pruneLocked() {
	now := time.Now()
	for id, t := range s.threads {
		if now.After(t.expiresAt) {
			delete(s.threads, id)
		}
	}
}
