package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/voxera/roomserver/internal/database"
	"github.com/voxera/roomserver/internal/testutil"
	"github.com/voxera/roomserver/internal/types"
)

func newTestClient(t *testing.T, db *database.MockRoomRepository) (*Client, *PresenceTracker) {
	t.Helper()

	c, b := newTestCoordinator(t, db)
	tracker := NewPresenceTracker(testutil.TestLogger(t), c, b, 30*time.Second)
	client := NewClient(types.User{Id: 7, Username: "alice"}, nil, c, tracker, testutil.TestLogger(t))

	return client, tracker
}

func recvResponse(t *testing.T, c *Client) *ServerMessage {
	t.Helper()

	select {
	case msg := <-c.send:
		require.NotNil(t, msg.Response, "expected a response frame")
		return msg
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for response")
		return nil
	}
}

func trackedRooms(tracker *PresenceTracker) []string {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	var rooms []string
	for _, e := range tracker.entries {
		rooms = append(rooms, e.roomId)
	}
	return rooms
}

func joinMocks(db *database.MockRoomRepository, room database.Room, participantId int) {
	db.On("GetRoomByExternalId", room.ExternalId).Return(room, nil)
	db.On("JoinRoom", room.Id, 7).Return(database.Participant{
		Id:     participantId,
		RoomId: room.Id,
		UserId: 7,
		Role:   types.RoleListener,
	}, nil)
	db.On("ListActiveParticipants", room.Id).Return([]database.Participant{}, nil)
}

func TestClientRoomSwitch(t *testing.T) {
	roomA := database.Room{Id: 1, ExternalId: "room-a", Title: "A", HostId: 100, MaxParticipants: 10, IsActive: true}
	roomB := database.Room{Id: 2, ExternalId: "room-b", Title: "B", HostId: 200, MaxParticipants: 10, IsActive: true}

	t.Run("switching rooms leaves the previous one", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		client, tracker := newTestClient(t, db)

		joinMocks(db, roomA, 20)
		joinMocks(db, roomB, 21)
		db.On("GetAccountById", 7).Return(database.User{Id: 7, Username: "alice"}, nil)
		db.On("GetActiveParticipant", roomA.Id, 7).Return(database.Participant{
			Id:     20,
			RoomId: roomA.Id,
			UserId: 7,
			Role:   types.RoleListener,
		}, nil)
		db.On("LeaveParticipant", 20).Return(nil)

		ctx := context.Background()
		client.handleJoin(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 1}, UserId: 7, Join: &Join{RoomId: "room-a"}})
		assert.Equal(t, http.StatusOK, recvResponse(t, client).Response.ResponseCode)

		client.handleJoin(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 2}, UserId: 7, Join: &Join{RoomId: "room-b"}})
		assert.Equal(t, http.StatusOK, recvResponse(t, client).Response.ResponseCode)

		db.AssertCalled(t, "LeaveParticipant", 20)
		assert.Equal(t, "room-b", client.currentRoom())
		assert.Equal(t, []string{"room-b"}, trackedRooms(tracker), "expected only the new room to be tracked")
	})

	t.Run("second live connection keeps the membership", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		client, tracker := newTestClient(t, db)

		joinMocks(db, roomA, 20)
		joinMocks(db, roomB, 21)
		db.On("GetAccountById", 7).Return(database.User{Id: 7, Username: "alice"}, nil)

		ctx := context.Background()
		client.handleJoin(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 1}, UserId: 7, Join: &Join{RoomId: "room-a"}})
		assert.Equal(t, http.StatusOK, recvResponse(t, client).Response.ResponseCode)

		// the same user watching room-a from a second device
		tracker.Register("room-a", 7, "other-conn")

		client.handleJoin(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 2}, UserId: 7, Join: &Join{RoomId: "room-b"}})
		assert.Equal(t, http.StatusOK, recvResponse(t, client).Response.ResponseCode)

		db.AssertNotCalled(t, "LeaveParticipant", mock.Anything)
		assert.ElementsMatch(t, []string{"room-a", "room-b"}, trackedRooms(tracker))
	})
}

func TestClientLeave(t *testing.T) {
	roomA := database.Room{Id: 1, ExternalId: "room-a", Title: "A", HostId: 100, MaxParticipants: 10, IsActive: true}

	t.Run("detaches after the membership ends", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		client, tracker := newTestClient(t, db)

		joinMocks(db, roomA, 20)
		db.On("GetAccountById", 7).Return(database.User{Id: 7, Username: "alice"}, nil)
		db.On("GetActiveParticipant", roomA.Id, 7).Return(database.Participant{
			Id:     20,
			RoomId: roomA.Id,
			UserId: 7,
			Role:   types.RoleListener,
		}, nil)
		db.On("LeaveParticipant", 20).Return(nil)

		ctx := context.Background()
		client.handleJoin(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 1}, UserId: 7, Join: &Join{RoomId: "room-a"}})
		assert.Equal(t, http.StatusOK, recvResponse(t, client).Response.ResponseCode)

		client.handleLeave(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 2}, UserId: 7, Leave: &Leave{RoomId: "room-a"}})
		assert.Equal(t, http.StatusAccepted, recvResponse(t, client).Response.ResponseCode)

		db.AssertCalled(t, "LeaveParticipant", 20)
		assert.Nil(t, client.events(), "expected subscription to be cleared")
		assert.Empty(t, trackedRooms(tracker), "expected presence entry to be dropped")
	})

	t.Run("storage failure keeps the stream attached", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		client, tracker := newTestClient(t, db)

		joinMocks(db, roomA, 20)
		db.On("GetAccountById", 7).Return(database.User{Id: 7, Username: "alice"}, nil)
		db.On("GetActiveParticipant", roomA.Id, 7).Return(database.Participant{}, errors.New("storage offline"))

		ctx := context.Background()
		client.handleJoin(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 1}, UserId: 7, Join: &Join{RoomId: "room-a"}})
		assert.Equal(t, http.StatusOK, recvResponse(t, client).Response.ResponseCode)

		client.handleLeave(ctx, &ClientMessage{BaseMessage: BaseMessage{Id: 2}, UserId: 7, Leave: &Leave{RoomId: "room-a"}})
		assert.Equal(t, http.StatusInternalServerError, recvResponse(t, client).Response.ResponseCode)

		db.AssertNotCalled(t, "LeaveParticipant", mock.Anything)
		assert.NotNil(t, client.events(), "expected subscription to survive a failed leave")
		assert.Equal(t, []string{"room-a"}, trackedRooms(tracker), "expected presence entry to survive a failed leave")
	})
}
