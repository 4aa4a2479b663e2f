package chat_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuin/radikari-chat-widget/internal/chat"
	"github.com/valuin/radikari-chat-widget/internal/demoserver"
	"github.com/valuin/radikari-chat-widget/internal/event"
	"github.com/valuin/radikari-chat-widget/internal/store"
	"github.com/valuin/radikari-chat-widget/internal/transport"
)

// eventCounter tallies bus events by type.
type eventCounter struct {
	mu     sync.Mutex
	counts map[event.Type]int
}

func newEventCounter(b *event.Bus) *eventCounter {
	c := &eventCounter{counts: make(map[event.Type]int)}
	b.SubscribeAll(func(e event.Event) {
		c.mu.Lock()
		c.counts[e.Type]++
		c.mu.Unlock()
	})
	return c
}

func (c *eventCounter) get(t event.Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[t]
}

func (c *eventCounter) eventually(t *testing.T, typ event.Type, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.get(typ) == want },
		2*time.Second, 10*time.Millisecond, "waiting for %d %s events", want, typ)
}

func setup(t *testing.T) (*demoserver.Server, *chat.Controller, *store.Memory, *eventCounter) {
	t.Helper()
	srv := demoserver.New(demoserver.Config{ThreadTTL: time.Minute, FrameDelay: time.Millisecond})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	st := store.NewMemory()
	c := chat.New(
		chat.Config{TenantID: "acme", BaseURL: ts.URL},
		chat.WithTransport(transport.New(ts.URL)),
		chat.WithStore(st),
	)
	t.Cleanup(func() { _ = c.Close() })

	return srv, c, st, newEventCounter(c.Bus())
}

func TestEndToEnd_FullTurnAgainstDemoServer(t *testing.T) {
	_, c, st, events := setup(t)

	c.Submit(context.Background(), "hello demo")

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.RoleUser, msgs[0].Role)
	assert.Equal(t, chat.RoleAssistant, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, `You said: "hello demo"`)
	assert.Equal(t, chat.StateIdle, c.State())
	assert.Empty(t, c.Err())

	_, ok := st.Get("acme")
	assert.True(t, ok, "thread id persisted for the tenant")
	events.eventually(t, event.ThreadCreated, 1)
	events.eventually(t, event.MessageCompleted, 1)
}

func TestEndToEnd_SecondTurnReusesThread(t *testing.T) {
	_, c, st, events := setup(t)

	c.Submit(context.Background(), "first")
	first, _ := st.Get("acme")

	c.Submit(context.Background(), "second")
	second, _ := st.Get("acme")

	assert.Equal(t, first, second, "same thread across turns")
	assert.Len(t, c.Messages(), 4)
	events.eventually(t, event.ThreadCreated, 1)
}

func TestEndToEnd_ExpiryRecoversTransparently(t *testing.T) {
	srv, c, st, events := setup(t)

	c.Submit(context.Background(), "warm up")
	stale, ok := st.Get("acme")
	require.True(t, ok)

	srv.Expire(stale)

	c.Submit(context.Background(), "after expiry")

	// The turn succeeded despite the stale thread id.
	msgs := c.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[3].Content, `You said: "after expiry"`)
	assert.Empty(t, c.Err())

	fresh, ok := st.Get("acme")
	require.True(t, ok)
	assert.NotEqual(t, stale, fresh, "a fresh thread id replaced the stale one")

	events.eventually(t, event.ThreadExpired, 1)
	events.eventually(t, event.ThreadRecovered, 1)
	events.eventually(t, event.ThreadCreated, 2)
}
