package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxera/roomserver/internal/testutil"
)

func TestBroadcaster_PublishOrder(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	sub := b.Subscribe("test-room", "conn-1")

	for i := 0; i < 5; i++ {
		event := newRoomEvent(EventChatMessage, "test-room", 7)
		event.ChatMessage = &ChatMessage{SeqId: i + 1, Content: fmt.Sprintf("msg-%d", i+1)}
		b.Publish("test-room", event)
	}

	for i := 0; i < 5; i++ {
		event := recvEvent(t, sub)
		require.NotNil(t, event.ChatMessage)
		assert.Equal(t, i+1, event.ChatMessage.SeqId, "expected events in publish order")
	}
}

func TestBroadcaster_RoomIsolation(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	subA := b.Subscribe("room-a", "conn-a")
	subB := b.Subscribe("room-b", "conn-b")

	b.Publish("room-a", newRoomEvent(EventChatMessage, "room-a", 7))

	event := recvEvent(t, subA)
	assert.Equal(t, "room-a", event.RoomId)
	assert.Empty(t, subB.Events, "expected no cross-room delivery")
}

func TestBroadcaster_ResubscribeReplaces(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	first := b.Subscribe("room-a", "conn-1")
	second := b.Subscribe("room-b", "conn-1")

	_, ok := <-first.Events
	assert.False(t, ok, "expected first subscription to be dropped on resubscribe")

	assert.Equal(t, 0, b.SubscriberCount("room-a"))
	assert.Equal(t, 1, b.SubscriberCount("room-b"))

	b.Publish("room-b", newRoomEvent(EventChatMessage, "room-b", 7))
	event := recvEvent(t, second)
	assert.Equal(t, "room-b", event.RoomId)
}

func TestBroadcaster_UnsubscribeIdempotent(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	b.Subscribe("test-room", "conn-1")
	b.Unsubscribe("conn-1")
	b.Unsubscribe("conn-1")
	b.Unsubscribe("never-subscribed")

	assert.Equal(t, 0, b.SubscriberCount("test-room"))
}

func TestBroadcaster_DropsSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	slow := b.Subscribe("test-room", "slow")
	fast := b.Subscribe("test-room", "fast")

	// fill the slow subscriber's buffer, then publish one more
	for i := 0; i <= eventBufferSize; i++ {
		b.Publish("test-room", newRoomEvent(EventChatMessage, "test-room", 7))
		// drain the fast subscriber so it never falls behind
		<-fast.Events
	}

	assert.Equal(t, 1, b.SubscriberCount("test-room"), "expected slow subscriber to be dropped")

	// the slow subscriber's queued events remain readable, then the
	// channel closes
	for i := 0; i < eventBufferSize; i++ {
		_, ok := <-slow.Events
		require.True(t, ok, "expected queued event %d to be readable", i)
	}
	_, ok := <-slow.Events
	assert.False(t, ok, "expected channel to close after drain")
}

func TestBroadcaster_CloseRoom(t *testing.T) {
	b := NewBroadcaster(testutil.TestLogger(t))

	sub := b.Subscribe("test-room", "conn-1")
	other := b.Subscribe("other-room", "conn-2")

	b.Publish("test-room", newRoomEvent(EventRoomEnded, "test-room", 7))
	b.CloseRoom("test-room")

	event := recvEvent(t, sub)
	assert.Equal(t, EventRoomEnded, event.Kind, "expected queued event before close")

	_, ok := <-sub.Events
	assert.False(t, ok, "expected channel to close with the room")

	assert.Equal(t, 1, b.SubscriberCount("other-room"), "expected other room to be unaffected")
	assert.Empty(t, other.Events)
}
