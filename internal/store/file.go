package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valuin/radikari-chat-widget/internal/logging"
)

// stateFile is the on-disk layout. One entry per namespaced tenant key,
// value = raw thread id string.
type stateFile struct {
	Threads   map[string]string `json:"threads"`
	UpdatedAt int64             `json:"updatedAt,omitempty"`
}

// File is a Store backed by a small JSON state file, used by the CLI so a
// thread survives across REPL invocations within a login session. Every
// failure is swallowed: an unreadable file reads as empty, an unwritable
// one drops the write with a warning.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a file-backed store at path. The file and its parent
// directory are created lazily on the first Set.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get(tenantID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.read()
	threadID, ok := st.Threads[Key(tenantID)]
	if !ok || threadID == "" {
		return "", false
	}
	return threadID, true
}

func (f *File) Set(tenantID, threadID string) {
	if threadID == "" {
		logging.Warn().Str("tenant_id", tenantID).Msg("refusing to store empty thread id")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.read()
	st.Threads[Key(tenantID)] = threadID
	f.write(st)
}

func (f *File) Clear(tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.read()
	if _, ok := st.Threads[Key(tenantID)]; !ok {
		return
	}
	delete(st.Threads, Key(tenantID))
	f.write(st)
}

// read loads the state file, falling back to an empty state on any error.
func (f *File) read() stateFile {
	st := stateFile{Threads: map[string]string{}}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return st
	}
	if err := json.Unmarshal(data, &st); err != nil {
		logging.Warn().Err(err).Str("path", f.path).Msg("state file unreadable, starting empty")
		return stateFile{Threads: map[string]string{}}
	}
	if st.Threads == nil {
		st.Threads = map[string]string{}
	}
	return st
}

// write persists the state atomically (temp file, then rename). Failures
// are logged and dropped.
func (f *File) write(st stateFile) {
	st.UpdatedAt = time.Now().UnixMilli()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		logging.Warn().Err(err).Str("path", f.path).Msg("state dir unavailable, dropping write")
		return
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		logging.Warn().Err(err).Msg("state marshal failed, dropping write")
		return
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logging.Warn().Err(err).Str("path", tmp).Msg("state write failed, dropping write")
		return
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		logging.Warn().Err(err).Str("path", f.path).Msg("state rename failed, dropping write")
	}
}
