// Package event provides the pub/sub seam between the conversation
// lifecycle controller and whatever renders it, built on watermill.
//
// The controller publishes; renderers and hosts subscribe. Nothing in the
// lifecycle core ever calls into a UI directly, so renderers can be swapped
// without touching the state machine.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type identifies a widget event.
type Type string

const (
	ThreadCreated    Type = "thread.created"
	ThreadExpired    Type = "thread.expired"
	ThreadRecovered  Type = "thread.recovered"
	MessageCreated   Type = "message.created"
	MessageDelta     Type = "message.delta"
	MessageCompleted Type = "message.completed"
	StateChanged     Type = "state.changed"
	ChatError        Type = "chat.error"
)

// Event is a single published event.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// ThreadData is the payload of thread.* events.
type ThreadData struct {
	TenantID string `json:"tenantId"`
	ThreadID string `json:"threadId,omitempty"`
}

// MessageData is the payload of message.created and message.completed.
type MessageData struct {
	MessageID string `json:"messageId"`
	Role      string `json:"role"`
	Content   string `json:"content,omitempty"`
}

// DeltaData is the payload of message.delta. Delta is the appended
// fragment, Content the full accumulated text after applying it.
type DeltaData struct {
	MessageID string `json:"messageId"`
	Delta     string `json:"delta"`
	Content   string `json:"content"`
}

// StateData is the payload of state.changed.
type StateData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ErrorData is the payload of chat.error.
type ErrorData struct {
	Message string `json:"message"`
}

// Subscriber is a function that receives events.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is a per-controller event bus. It keeps watermill's gochannel for
// infrastructure while dispatching through direct typed calls, so
// subscribers keep full type information.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCtx    context.Context
	closedCancel context.CancelFunc
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[Type][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for one event type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers a subscriber for every event type and returns an
// unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[t]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// Publish sends an event to all subscribers, each in its own goroutine so
// a slow renderer cannot stall the stream.
func (b *Bus) Publish(event Event) {
	for _, sub := range b.collect(event.Type) {
		go sub(event)
	}
}

// PublishSync calls all subscribers in the current goroutine before
// returning. Delta events use this so rendering observes them in exact
// decode order.
func (b *Bus) PublishSync(event Event) {
	for _, sub := range b.collect(event.Type) {
		sub(event)
	}
}

// Close shuts the bus down. Further publishes and subscribes are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill channel for hosts that want to
// bridge events onto a distributed backend.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
