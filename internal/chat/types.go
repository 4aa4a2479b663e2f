package chat

import (
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// State is the controller's lifecycle state.
type State string

const (
	// StateIdle accepts new submissions.
	StateIdle State = "idle"
	// StateSending resolves the thread for an accepted submission.
	StateSending State = "sending"
	// StateStreaming applies deltas to the assistant placeholder.
	StateStreaming State = "streaming"
	// StateRecovering tears down an expired thread before the single retry.
	StateRecovering State = "recovering"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in the conversation, held in memory for the
// lifetime of the controller instance. Content is the raw accumulated
// text; rendering (markdown or otherwise) is the host's concern.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Config is the host-facing configuration surface. Only TenantID and
// BaseURL gate the state machine (as submit preconditions); Lang and
// Inline are display concerns carried for the host.
type Config struct {
	// TenantID scopes thread storage and requests. Supplied by the host,
	// never generated here.
	TenantID string
	// BaseURL is the chat API origin.
	BaseURL string
	// Lang is the display language. Display-only.
	Lang string
	// Inline selects inline vs floating display mode. Display-only.
	Inline bool
}

// valid reports whether the configuration permits submissions.
func (c Config) valid() bool {
	return strings.TrimSpace(c.TenantID) != "" && strings.TrimSpace(c.BaseURL) != ""
}

// newMessageID mints a sortable message id.
func newMessageID() string {
	return "msg_" + ulid.MustNew(ulid.Now(), rand.Reader).String()
}
