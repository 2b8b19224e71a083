package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sustentus/collab/bus"
	"github.com/sustentus/collab/client"
	"github.com/sustentus/collab/event"
	"github.com/sustentus/collab/state"
)

// These tests run the whole stack in-process: client, bus and derived state
// on one side, the hub on the other, joined by the in-process transport.

func newStackClient(t *testing.T, h *Hub) (*client.Client, *bus.Bus, *state.Store) {
	t.Helper()
	b := bus.New()
	store := state.NewStore(b)
	c := client.New(NewTransport(h), b,
		client.WithHeartbeatInterval(time.Hour),
		client.WithReconnect(5*time.Millisecond, 5))
	t.Cleanup(func() {
		c.Disconnect()
		store.Close()
	})
	return c, b, store
}

func awaitEvent(t *testing.T, b *bus.Bus, eventName string) <-chan []any {
	t.Helper()
	ch := make(chan []any, 16)
	b.On(eventName, func(args ...any) { ch <- args })
	return ch
}

func recvOrFail(t *testing.T, ch <-chan []any, what string) []any {
	t.Helper()
	select {
	case args := <-ch:
		return args
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

func TestConnectJoinReflectsMembership(t *testing.T) {
	h := newTestHub(t)
	c, b, store := newStackClient(t, h)
	connected := awaitEvent(t, b, event.Connected)
	joined := awaitEvent(t, b, event.UserJoined)

	c.Connect()
	recvOrFail(t, connected, "connected")
	assert.Equal(t, state.StatusConnected, store.ConnectionStatus())

	c.JoinProject("123")
	args := recvOrFail(t, joined, "user_joined")
	p, ok := args[0].(event.UserJoinedPayload)
	require.True(t, ok)
	assert.Equal(t, "123", p.ProjectID)

	assert.Len(t, h.Members("123"), 1)
	assert.Len(t, store.OnlineUsers(), 1, "join marks the user online")
	assert.Equal(t, []string{"123"}, c.Rooms())
}

func TestQueuedChatDeliveredOnceAfterConnect(t *testing.T) {
	h := newTestHub(t)

	// An observer already sits in the room.
	observer, recvObs := openTransport(t, h)
	mustSend(t, observer, event.JoinProject, event.JoinProjectPayload{ProjectID: "123"})
	expectEvent(t, recvObs, event.UserJoined)

	c, b, _ := newStackClient(t, h)
	connected := awaitEvent(t, b, event.Connected)

	// Sent while disconnected: queued, not delivered.
	c.JoinProject("123")
	c.SendChatMessage("123", "hello", "david")
	expectNoEvent(t, recvObs, event.ChatMessage, 100*time.Millisecond)
	require.Equal(t, client.Disconnected, c.State())

	c.Connect()
	recvOrFail(t, connected, "connected")

	env := expectEvent(t, recvObs, event.ChatMessage)
	var p event.ChatMessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "hello", p.Message)
	assert.Equal(t, "david", p.UserID)

	expectNoEvent(t, recvObs, event.ChatMessage, 100*time.Millisecond)
	assert.Equal(t, 0, c.Status().QueueLen)
}

func TestTypingEndToEnd(t *testing.T) {
	h := newTestHub(t)

	sender, recvSender := openTransport(t, h)
	mustSend(t, sender, event.JoinProject, event.JoinProjectPayload{ProjectID: "123"})
	expectEvent(t, recvSender, event.UserJoined)

	c, b, store := newStackClient(t, h)
	connected := awaitEvent(t, b, event.Connected)
	typing := awaitEvent(t, b, event.TypingIndicator)

	c.Connect()
	recvOrFail(t, connected, "connected")
	c.JoinProject("123")

	mustSend(t, sender, event.TypingIndicator, event.TypingIndicatorPayload{
		ProjectID: "123", UserID: "csm-1", IsTyping: true,
	})
	recvOrFail(t, typing, "typing indicator")
	assert.True(t, store.IsUserTyping("123", "csm-1"))

	mustSend(t, sender, event.TypingIndicator, event.TypingIndicatorPayload{
		ProjectID: "123", UserID: "csm-1", IsTyping: false,
	})
	recvOrFail(t, typing, "typing cleared")
	assert.False(t, store.IsUserTyping("123", "csm-1"))
	assert.Empty(t, store.TypingUsers("123"))
}

func TestHeartbeatAnsweredEndToEnd(t *testing.T) {
	h := newTestHub(t)
	c, b, _ := newStackClient(t, h)
	connected := awaitEvent(t, b, event.Connected)
	pong := awaitEvent(t, b, event.Pong)

	c.Connect()
	recvOrFail(t, connected, "connected")

	c.Send(event.Ping, event.PingPayload{Timestamp: time.Now().UnixMilli()})
	args := recvOrFail(t, pong, "pong")
	p, ok := args[0].(event.PongPayload)
	require.True(t, ok)
	assert.NotZero(t, p.Timestamp)
}

func TestReconnectRejoinsRooms(t *testing.T) {
	h := newTestHub(t)
	c, b, _ := newStackClient(t, h)
	connected := awaitEvent(t, b, event.Connected)

	c.Connect()
	recvOrFail(t, connected, "connected")
	c.JoinProject("123")
	require.Eventually(t, func() bool { return len(h.Members("123")) == 1 },
		time.Second, 5*time.Millisecond)

	// Server-side drop: the hub kicks the connection, the client recovers.
	members := h.Members("123")
	require.Len(t, members, 1)
	h.deregister(members[0])

	recvOrFail(t, connected, "reconnected")
	assert.Eventually(t, func() bool { return len(h.Members("123")) == 1 },
		2*time.Second, 5*time.Millisecond, "membership replayed on the new connection")
}

func TestDisconnectStaysDown(t *testing.T) {
	h := newTestHub(t)
	c, b, store := newStackClient(t, h)
	connected := awaitEvent(t, b, event.Connected)
	disconnected := awaitEvent(t, b, event.Disconnected)

	c.Connect()
	recvOrFail(t, connected, "connected")

	c.Disconnect()
	args := recvOrFail(t, disconnected, "disconnected")
	p, ok := args[0].(event.DisconnectedPayload)
	require.True(t, ok)
	assert.Equal(t, 1000, p.Code)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, client.Disconnected, c.State())
	assert.Equal(t, 0, h.ConnCount())
	assert.Equal(t, state.StatusDisconnected, store.ConnectionStatus())
}
