// Package store persists the per-tenant thread id for the lifetime of a
// chat session. The backing store is deliberately ephemeral: losing it only
// costs a thread recreation on the next send.
//
// All implementations degrade gracefully. Reads report absent on any
// underlying failure and writes are dropped with a logged warning; callers
// never see an error.
package store

import (
	"strings"
	"sync"

	"github.com/valuin/radikari-chat-widget/internal/logging"
)

// keyPrefix namespaces widget entries away from anything else sharing the
// backing store.
const keyPrefix = "radikari.thread."

// Store maps a tenant id to the currently active thread id. A tenant holds
// at most one thread id at a time.
type Store interface {
	// Get returns the thread id stored for a tenant, if any.
	Get(tenantID string) (string, bool)
	// Set records the thread id for a tenant, replacing any previous one.
	Set(tenantID, threadID string)
	// Clear removes the thread id stored for a tenant.
	Clear(tenantID string)
}

// Key returns the namespaced storage key for a tenant.
func Key(tenantID string) string {
	return keyPrefix + tenantID
}

// tenantFromKey reverses Key. The second result is false for keys outside
// the widget namespace.
func tenantFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, keyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, keyPrefix), true
}

// Memory is an in-process Store, the session-scoped default. It vanishes
// with the process the same way tab storage vanishes with the tab.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) Get(tenantID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	threadID, ok := m.entries[Key(tenantID)]
	if !ok || threadID == "" {
		return "", false
	}
	return threadID, true
}

func (m *Memory) Set(tenantID, threadID string) {
	if threadID == "" {
		logging.Warn().Str("tenant_id", tenantID).Msg("refusing to store empty thread id")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[Key(tenantID)] = threadID
}

func (m *Memory) Clear(tenantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, Key(tenantID))
}
