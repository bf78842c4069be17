package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxera/roomserver/internal/database"
	"github.com/voxera/roomserver/internal/types"
)

func TestRoomPolls(t *testing.T) {
	t.Run("vote counts and single vote per user", func(t *testing.T) {
		rp := newRoomPolls()
		p := rp.create("best snack?", []string{"chips", "fruit"}, 100)

		_, err := rp.vote(p.Id, 1, 0)
		require.NoError(t, err)
		_, err = rp.vote(p.Id, 2, 1)
		require.NoError(t, err)
		_, err = rp.vote(p.Id, 3, 1)
		require.NoError(t, err)

		assert.Equal(t, []int{1, 2}, p.Counts)

		_, err = rp.vote(p.Id, 1, 1)
		assert.ErrorIs(t, err, types.ErrAlreadyVoted, "expected second vote to be rejected")
		assert.Equal(t, []int{1, 2}, p.Counts, "expected counts unchanged after rejected vote")
	})

	t.Run("vote validation", func(t *testing.T) {
		rp := newRoomPolls()
		p := rp.create("q", []string{"a", "b"}, 100)

		_, err := rp.vote("no-such-poll", 1, 0)
		assert.ErrorIs(t, err, types.ErrPollNotFound)

		_, err = rp.vote(p.Id, 1, 2)
		assert.ErrorIs(t, err, types.ErrInvalidInput)

		_, err = rp.vote(p.Id, 1, -1)
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("ended poll rejects votes", func(t *testing.T) {
		rp := newRoomPolls()
		p := rp.create("q", []string{"a", "b"}, 100)

		_, err := rp.end(p.Id)
		require.NoError(t, err)

		_, err = rp.vote(p.Id, 1, 0)
		assert.ErrorIs(t, err, types.ErrPollNotFound)

		_, err = rp.end(p.Id)
		assert.ErrorIs(t, err, types.ErrPollNotFound, "expected double end to be rejected")
	})

	t.Run("snapshot copies active polls", func(t *testing.T) {
		rp := newRoomPolls()
		active := rp.create("active", []string{"a", "b"}, 100)
		ended := rp.create("ended", []string{"a", "b"}, 100)
		_, err := rp.end(ended.Id)
		require.NoError(t, err)

		snap := rp.snapshot()
		require.Len(t, snap, 1, "expected only active polls in snapshot")
		assert.Equal(t, active.Id, snap[0].Id)

		// mutating the snapshot must not touch the live poll
		snap[0].Counts[0] = 99
		assert.Equal(t, 0, active.Counts[0])
	})
}

func TestCoordinatorPolls(t *testing.T) {
	room := activeTestRoom()

	host := database.Participant{Id: 10, RoomId: room.Id, UserId: 100, Role: types.RoleHost}
	coHost := database.Participant{Id: 11, RoomId: room.Id, UserId: 101, Role: types.RoleCoHost}
	listener := database.Participant{Id: 13, RoomId: room.Id, UserId: 103, Role: types.RoleListener}

	t.Run("full poll lifecycle", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		c, b := newTestCoordinator(t, db)

		db.On("GetRoomByExternalId", "test-room").Return(room, nil)
		db.On("GetActiveParticipant", room.Id, host.UserId).Return(host, nil)
		db.On("GetActiveParticipant", room.Id, listener.UserId).Return(listener, nil)

		sub := b.Subscribe("test-room", "watcher")

		poll, err := c.CreatePoll(context.Background(), "test-room", host.UserId, "best mode?", []string{"music", "podcast"})
		require.NoError(t, err, "expected no error creating poll")
		assert.True(t, poll.Active)

		event := recvEvent(t, sub)
		assert.Equal(t, EventPollCreated, event.Kind)

		err = c.CastVote(context.Background(), "test-room", listener.UserId, poll.Id, 1)
		require.NoError(t, err, "expected no error casting vote")

		event = recvEvent(t, sub)
		assert.Equal(t, EventPollVoteCast, event.Kind)
		require.NotNil(t, event.PollVoteCast)
		assert.Equal(t, []int{0, 1}, event.PollVoteCast.Counts)

		err = c.EndPoll(context.Background(), "test-room", host.UserId, poll.Id)
		require.NoError(t, err, "expected no error ending poll")

		event = recvEvent(t, sub)
		assert.Equal(t, EventPollEnded, event.Kind)
		require.NotNil(t, event.PollEnded)
		assert.False(t, event.PollEnded.Poll.Active)
	})

	t.Run("listener cannot create poll", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		c, _ := newTestCoordinator(t, db)

		db.On("GetRoomByExternalId", "test-room").Return(room, nil)
		db.On("GetActiveParticipant", room.Id, listener.UserId).Return(listener, nil)

		_, err := c.CreatePoll(context.Background(), "test-room", listener.UserId, "q", []string{"a", "b"})
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("poll needs at least two options", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		c, _ := newTestCoordinator(t, db)

		_, err := c.CreatePoll(context.Background(), "test-room", host.UserId, "q", []string{"only"})
		assert.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("only creator or host ends a poll", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		c, _ := newTestCoordinator(t, db)

		db.On("GetRoomByExternalId", "test-room").Return(room, nil)
		db.On("GetActiveParticipant", room.Id, coHost.UserId).Return(coHost, nil)
		db.On("GetActiveParticipant", room.Id, host.UserId).Return(host, nil)
		db.On("GetActiveParticipant", room.Id, listener.UserId).Return(listener, nil)

		poll, err := c.CreatePoll(context.Background(), "test-room", coHost.UserId, "q", []string{"a", "b"})
		require.NoError(t, err)

		err = c.EndPoll(context.Background(), "test-room", listener.UserId, poll.Id)
		assert.ErrorIs(t, err, types.ErrForbidden, "expected non-creator listener to be refused")

		err = c.EndPoll(context.Background(), "test-room", host.UserId, poll.Id)
		assert.NoError(t, err, "expected host to end another moderator's poll")
	})

	t.Run("polls die with the room", func(t *testing.T) {
		db := &database.MockRoomRepository{}
		c, _ := newTestCoordinator(t, db)

		db.On("GetRoomByExternalId", "test-room").Return(room, nil)
		db.On("GetActiveParticipant", room.Id, host.UserId).Return(host, nil)
		db.On("EndRoom", room.Id).Return(nil)

		poll, err := c.CreatePoll(context.Background(), "test-room", host.UserId, "q", []string{"a", "b"})
		require.NoError(t, err)

		err = c.EndRoom(context.Background(), "test-room", host.UserId)
		require.NoError(t, err)

		_, ok := c.roomPollsFor("test-room").get(poll.Id)
		assert.False(t, ok, "expected poll state to be discarded with the room")
	})
}
