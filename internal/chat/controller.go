// Package chat owns the conversation lifecycle: lazy thread creation,
// single-flight streaming sends, in-order delta application, and bounded
// recovery when the server reports the thread gone.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valuin/radikari-chat-widget/internal/event"
	"github.com/valuin/radikari-chat-widget/internal/logging"
	"github.com/valuin/radikari-chat-widget/internal/store"
	"github.com/valuin/radikari-chat-widget/internal/stream"
	"github.com/valuin/radikari-chat-widget/internal/transport"
)

// Transport is the remote surface the controller drives. Satisfied by
// *transport.Client; fakes implement it in tests.
type Transport interface {
	CreateThread(ctx context.Context, tenantID string) (transport.Thread, error)
	SendMessageStream(ctx context.Context, tenantID, threadID, text string) (io.ReadCloser, error)
}

// invalidThreadIDs are sentinel values that may leak into storage from a
// previous broken session and must be treated as absent.
var invalidThreadIDs = map[string]bool{
	"":          true,
	"null":      true,
	"undefined": true,
}

// Controller is the conversation lifecycle state machine. One instance
// owns one message list, at most one active stream, and at most one
// cancellation token at a time.
type Controller struct {
	mu sync.Mutex

	cfg    Config
	client Transport
	store  store.Store
	bus    *event.Bus
	log    zerolog.Logger

	// customTransport pins the injected client across config updates.
	customTransport bool
	ownsBus         bool

	state    State
	messages []Message
	lastErr  string
	cancel   context.CancelFunc
}

// Option configures a Controller.
type Option func(*Controller)

// WithTransport injects a transport, bypassing construction from BaseURL.
func WithTransport(t Transport) Option {
	return func(c *Controller) {
		c.client = t
		c.customTransport = true
	}
}

// WithStore replaces the default in-memory session store.
func WithStore(s store.Store) Option {
	return func(c *Controller) { c.store = s }
}

// WithBus attaches an externally owned event bus. The controller will not
// close it on teardown.
func WithBus(b *event.Bus) Option {
	return func(c *Controller) {
		c.bus = b
		c.ownsBus = false
	}
}

// New creates an idle controller for the given host configuration.
func New(cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		store:   store.NewMemory(),
		bus:     event.NewBus(),
		ownsBus: true,
		state:   StateIdle,
		log:     logging.Component("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = transport.New(cfg.BaseURL)
	}
	return c
}

// Bus returns the event bus renderers subscribe to.
func (c *Controller) Bus() *event.Bus {
	return c.bus
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the conversation so far. Content is raw
// accumulated text; any renderer may format it.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Err returns the current user-visible error text, empty when none.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Config returns the current host configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// UpdateConfig applies a new host configuration. An in-flight turn keeps
// the tenant and transport it started with; the update affects future
// submissions only.
func (c *Controller) UpdateConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rebuild := !c.customTransport && cfg.BaseURL != c.cfg.BaseURL
	c.cfg = cfg
	if rebuild {
		c.client = transport.New(cfg.BaseURL)
	}
}

// Submit runs one full conversation turn for the given text and blocks
// until it settles. Blank text, a busy controller, or missing tenant/base
// URL make it a silent no-op: these are configuration preconditions, not
// user-facing errors.
func (c *Controller) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || c.state != StateIdle || !c.cfg.valid() {
		c.log.Debug().
			Str("state", string(c.state)).
			Bool("blank", text == "").
			Bool("configured", c.cfg.valid()).
			Msg("submission skipped")
		c.mu.Unlock()
		return
	}

	turnID := uuid.NewString()
	c.lastErr = ""

	userMsg := Message{ID: newMessageID(), Role: RoleUser, Content: text}
	c.messages = append(c.messages, userMsg)

	tenant := c.cfg.TenantID
	client := c.client

	// Flip to sending inside the same critical section as the idle check
	// so a concurrent Submit cannot slip past the single-flight guard.
	c.state = StateSending

	turnCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	c.bus.Publish(event.Event{Type: event.MessageCreated, Data: event.MessageData{
		MessageID: userMsg.ID,
		Role:      string(userMsg.Role),
		Content:   userMsg.Content,
	}})
	c.bus.Publish(event.Event{Type: event.StateChanged, Data: event.StateData{
		From: string(StateIdle),
		To:   string(StateSending),
	}})

	c.log.Debug().Str("turn_id", turnID).Str("tenant_id", tenant).Msg("turn accepted")
	c.runTurn(turnCtx, turnID, tenant, client, text)
}

// Cancel aborts any in-flight transport call. Cancellation is absorbed:
// applied deltas stay, no error is set, the controller returns to idle.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		c.log.Debug().Msg("cancelling in-flight turn")
		cancel()
	}
}

// Close tears the controller down: the in-flight call is aborted and the
// bus is closed if the controller owns it.
func (c *Controller) Close() error {
	c.Cancel()
	if c.ownsBus {
		return c.bus.Close()
	}
	return nil
}

// runTurn executes the submission flow with at most one expiry retry.
func (c *Controller) runTurn(ctx context.Context, turnID, tenant string, client Transport, text string) {
	expired, err := c.attempt(ctx, turnID, tenant, client, text)
	if expired {
		c.setState(StateRecovering)
		c.bus.Publish(event.Event{Type: event.ThreadExpired, Data: event.ThreadData{TenantID: tenant}})

		if ctx.Err() != nil {
			c.setState(StateIdle)
			return
		}

		c.log.Info().Str("turn_id", turnID).Msg("thread expired, retrying with a fresh thread")
		c.setState(StateSending)
		expired, err = c.attempt(ctx, turnID, tenant, client, text)
		switch {
		case expired:
			// A second expiry within one submission is a hard stop.
			err = errors.New("conversation expired, please try again")
		case err == nil:
			c.bus.Publish(event.Event{Type: event.ThreadRecovered, Data: event.ThreadData{TenantID: tenant}})
		}
	}

	if err != nil {
		if transport.IsCancelled(err) || ctx.Err() != nil {
			c.log.Debug().Str("turn_id", turnID).Msg("turn cancelled")
			c.setState(StateIdle)
			return
		}
		c.fail(turnID, err)
		return
	}

	c.setState(StateIdle)
}

// attempt runs one thread-resolution + dispatch + decode pass. It reports
// expired=true after cleaning up the placeholder and stored id, leaving
// the caller to decide whether a retry is still available.
func (c *Controller) attempt(ctx context.Context, turnID, tenant string, client Transport, text string) (expired bool, err error) {
	threadID, err := c.resolveThread(ctx, tenant, client)
	if err != nil {
		return false, err
	}

	// The placeholder is the one message that mutates in place: deltas
	// only ever append to it, at a stable index for the whole turn.
	c.mu.Lock()
	placeholder := Message{ID: newMessageID(), Role: RoleAssistant}
	c.messages = append(c.messages, placeholder)
	idx := len(c.messages) - 1
	c.mu.Unlock()

	c.bus.Publish(event.Event{Type: event.MessageCreated, Data: event.MessageData{
		MessageID: placeholder.ID,
		Role:      string(RoleAssistant),
	}})
	c.setState(StateStreaming)

	body, err := client.SendMessageStream(ctx, tenant, threadID, text)
	if err != nil {
		if errors.Is(err, transport.ErrThreadExpired) {
			c.removeMessage(idx, placeholder.ID)
			c.store.Clear(tenant)
			return true, err
		}
		return false, err
	}

	dec := stream.NewDecoder(body)
	defer func() { _ = dec.Close() }()

	for dec.Next() {
		c.applyDelta(idx, dec.Current().Delta)
	}
	if err := dec.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	final := c.messages[idx]
	c.mu.Unlock()

	c.log.Debug().
		Str("turn_id", turnID).
		Str("thread_id", threadID).
		Int("content_len", len(final.Content)).
		Msg("stream completed")
	c.bus.Publish(event.Event{Type: event.MessageCompleted, Data: event.MessageData{
		MessageID: final.ID,
		Role:      string(final.Role),
		Content:   final.Content,
	}})
	return false, nil
}

// resolveThread returns the stored thread id for the tenant, creating and
// persisting a fresh one when the store has nothing usable.
func (c *Controller) resolveThread(ctx context.Context, tenant string, client Transport) (string, error) {
	if threadID, ok := c.store.Get(tenant); ok && !invalidThreadIDs[threadID] {
		return threadID, nil
	}

	thread, err := client.CreateThread(ctx, tenant)
	if err != nil {
		return "", err
	}

	c.store.Set(tenant, thread.ThreadID)
	c.bus.Publish(event.Event{Type: event.ThreadCreated, Data: event.ThreadData{
		TenantID: tenant,
		ThreadID: thread.ThreadID,
	}})
	return thread.ThreadID, nil
}

// applyDelta appends a fragment to the placeholder, never replacing what
// is already there, and notifies subscribers synchronously so rendering
// observes deltas in exact decode order.
func (c *Controller) applyDelta(idx int, delta string) {
	c.mu.Lock()
	c.messages[idx].Content += delta
	msg := c.messages[idx]
	c.mu.Unlock()

	c.bus.PublishSync(event.Event{Type: event.MessageDelta, Data: event.DeltaData{
		MessageID: msg.ID,
		Delta:     delta,
		Content:   msg.Content,
	}})
}

// removeMessage drops the placeholder appended by a failed attempt. This
// is the single exception to the message list being append-only.
func (c *Controller) removeMessage(idx int, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx < len(c.messages) && c.messages[idx].ID == id {
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
	}
}

// fail records the single user-visible error for this submission.
func (c *Controller) fail(turnID string, err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()

	c.log.Warn().Err(err).Str("turn_id", turnID).Msg("turn failed")
	c.bus.Publish(event.Event{Type: event.ChatError, Data: event.ErrorData{Message: err.Error()}})
	c.setState(StateIdle)
}

// setState transitions the state machine and announces the change.
func (c *Controller) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from != to {
		c.bus.Publish(event.Event{Type: event.StateChanged, Data: event.StateData{
			From: string(from),
			To:   string(to),
		}})
	}
}
