package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/voxera/roomserver/internal/testutil"
	"github.com/voxera/roomserver/internal/types"
)

type mockLeaver struct {
	mock.Mock
}

func (m *mockLeaver) Leave(ctx context.Context, roomId string, userId int) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}

func newTestTracker(t *testing.T, leaver Leaver) (*PresenceTracker, *Broadcaster) {
	t.Helper()

	b := NewBroadcaster(testutil.TestLogger(t))
	pt := NewPresenceTracker(testutil.TestLogger(t), leaver, b, 30*time.Second)
	return pt, b
}

func TestPresenceTracker_Reap(t *testing.T) {
	t.Run("reaps expired connection and leaves room", func(t *testing.T) {
		leaver := &mockLeaver{}
		leaver.On("Leave", mock.Anything, "test-room", 7).Return(nil)

		pt, b := newTestTracker(t, leaver)

		now := time.Now()
		pt.now = func() time.Time { return now }

		sub := b.Subscribe("test-room", "conn-1")
		pt.Register("test-room", 7, "conn-1")

		// advance past the heartbeat window
		pt.now = func() time.Time { return now.Add(31 * time.Second) }
		pt.reap(context.Background())

		leaver.AssertExpectations(t)
		assert.Empty(t, pt.entries, "expected entry to be removed")

		_, ok := <-sub.Events
		assert.False(t, ok, "expected subscription to be dropped")
	})

	t.Run("heartbeat keeps connection alive", func(t *testing.T) {
		leaver := &mockLeaver{}
		pt, _ := newTestTracker(t, leaver)

		now := time.Now()
		pt.now = func() time.Time { return now }
		pt.Register("test-room", 7, "conn-1")

		pt.now = func() time.Time { return now.Add(25 * time.Second) }
		pt.Heartbeat("conn-1")

		pt.now = func() time.Time { return now.Add(40 * time.Second) }
		pt.reap(context.Background())

		leaver.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, pt.entries, 1, "expected refreshed entry to survive the sweep")
	})

	t.Run("second live connection prevents the leave", func(t *testing.T) {
		leaver := &mockLeaver{}
		pt, _ := newTestTracker(t, leaver)

		now := time.Now()
		pt.now = func() time.Time { return now }
		pt.Register("test-room", 7, "conn-1")

		pt.now = func() time.Time { return now.Add(20 * time.Second) }
		pt.Register("test-room", 7, "conn-2")

		pt.now = func() time.Time { return now.Add(31 * time.Second) }
		pt.reap(context.Background())

		leaver.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, pt.entries, 1, "expected only the expired connection to be removed")
	})

	t.Run("ignores member already gone", func(t *testing.T) {
		leaver := &mockLeaver{}
		leaver.On("Leave", mock.Anything, "test-room", 7).Return(types.ErrNotAMember)

		pt, _ := newTestTracker(t, leaver)

		now := time.Now()
		pt.now = func() time.Time { return now }
		pt.Register("test-room", 7, "conn-1")

		pt.now = func() time.Time { return now.Add(31 * time.Second) }
		pt.reap(context.Background())

		leaver.AssertExpectations(t)
	})
}

func TestPresenceTracker_Unregister(t *testing.T) {
	t.Run("last connection triggers leave", func(t *testing.T) {
		leaver := &mockLeaver{}
		leaver.On("Leave", mock.Anything, "test-room", 7).Return(nil)

		pt, b := newTestTracker(t, leaver)
		sub := b.Subscribe("test-room", "conn-1")
		pt.Register("test-room", 7, "conn-1")

		pt.Unregister(context.Background(), "conn-1")

		leaver.AssertExpectations(t)
		_, ok := <-sub.Events
		assert.False(t, ok, "expected subscription to be dropped")
	})

	t.Run("remaining connection suppresses leave", func(t *testing.T) {
		leaver := &mockLeaver{}
		pt, _ := newTestTracker(t, leaver)

		pt.Register("test-room", 7, "conn-1")
		pt.Register("test-room", 7, "conn-2")

		pt.Unregister(context.Background(), "conn-1")

		leaver.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything, mock.Anything)
		assert.Len(t, pt.entries, 1)
	})

	t.Run("unknown connection is a no-op", func(t *testing.T) {
		leaver := &mockLeaver{}
		pt, _ := newTestTracker(t, leaver)

		pt.Unregister(context.Background(), "never-registered")
		leaver.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestPresenceTracker_Forget(t *testing.T) {
	leaver := &mockLeaver{}
	pt, _ := newTestTracker(t, leaver)

	pt.Register("test-room", 7, "conn-1")
	pt.Forget("conn-1")

	now := time.Now()
	pt.now = func() time.Time { return now.Add(time.Hour) }
	pt.reap(context.Background())

	leaver.AssertNotCalled(t, "Leave", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, pt.entries)
}
