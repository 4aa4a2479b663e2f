package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	b := NewBus()
	defer func() { _ = b.Close() }()

	got := make(chan Event, 1)
	b.Subscribe(MessageDelta, func(e Event) { got <- e })

	b.Publish(Event{Type: MessageDelta, Data: DeltaData{Delta: "hi"}})

	select {
	case e := <-got:
		assert.Equal(t, MessageDelta, e.Type)
		assert.Equal(t, "hi", e.Data.(DeltaData).Delta)
	case <-time.After(time.Second):
		t.Fatal("subscriber never called")
	}
}

func TestSubscribeIgnoresOtherTypes(t *testing.T) {
	b := NewBus()
	defer func() { _ = b.Close() }()

	var mu sync.Mutex
	calls := 0
	b.Subscribe(ChatError, func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	b.PublishSync(Event{Type: MessageDelta})
	b.PublishSync(Event{Type: StateChanged})

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := NewBus()
	defer func() { _ = b.Close() }()

	var got []Type
	b.SubscribeAll(func(e Event) { got = append(got, e.Type) })

	b.PublishSync(Event{Type: ThreadCreated})
	b.PublishSync(Event{Type: MessageDelta})
	b.PublishSync(Event{Type: ChatError})

	assert.Equal(t, []Type{ThreadCreated, MessageDelta, ChatError}, got)
}

func TestPublishSyncPreservesOrder(t *testing.T) {
	b := NewBus()
	defer func() { _ = b.Close() }()

	var deltas []string
	b.Subscribe(MessageDelta, func(e Event) {
		deltas = append(deltas, e.Data.(DeltaData).Delta)
	})

	for _, d := range []string{"a", "b", "c", "d"} {
		b.PublishSync(Event{Type: MessageDelta, Data: DeltaData{Delta: d}})
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, deltas)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	defer func() { _ = b.Close() }()

	calls := 0
	unsub := b.Subscribe(StateChanged, func(Event) { calls++ })

	b.PublishSync(Event{Type: StateChanged})
	unsub()
	b.PublishSync(Event{Type: StateChanged})

	assert.Equal(t, 1, calls)
}

func TestClosedBusDropsEverything(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Close())

	calls := 0
	unsub := b.Subscribe(StateChanged, func(Event) { calls++ })
	b.PublishSync(Event{Type: StateChanged})
	unsub()

	assert.Zero(t, calls)
	assert.NoError(t, b.Close(), "closing twice is fine")
}
