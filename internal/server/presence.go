package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/voxera/roomserver/internal/types"
)

const (
	defaultReapInterval    = 10 * time.Second
	defaultPresenceTimeout = 90 * time.Second
)

// Leaver is the slice of the coordinator the presence tracker needs to
// evict a silently-disconnected participant.
type Leaver interface {
	Leave(ctx context.Context, roomId string, userId int) error
}

type presenceEntry struct {
	connId        string
	roomId        string
	userId        int
	lastHeartbeat time.Time
}

// PresenceTracker records which connections are currently live for each
// room member. Durable membership is owned by the coordinator; this
// component only detects connections that stopped heartbeating and
// turns them into leaves. It is process-local state: a multi-instance
// deployment must back it with a shared store keyed by room so that
// registration and reaping agree on liveness.
type PresenceTracker struct {
	log         *log.Logger
	coordinator Leaver
	broadcaster *Broadcaster

	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*presenceEntry

	stop chan struct{}
	done chan struct{}
}

func NewPresenceTracker(logger *log.Logger, coordinator Leaver, broadcaster *Broadcaster, timeout time.Duration) *PresenceTracker {
	if timeout <= 0 {
		timeout = defaultPresenceTimeout
	}

	return &PresenceTracker{
		log:         logger,
		coordinator: coordinator,
		broadcaster: broadcaster,
		interval:    defaultReapInterval,
		timeout:     timeout,
		now:         time.Now,
		entries:     make(map[string]*presenceEntry),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Register records a live connection for a room member. Idempotent per
// connection id: re-registering refreshes the heartbeat.
func (pt *PresenceTracker) Register(roomId string, userId int, connId string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if e, ok := pt.entries[connId]; ok {
		e.roomId = roomId
		e.userId = userId
		e.lastHeartbeat = pt.now()
		return
	}

	pt.entries[connId] = &presenceEntry{
		connId:        connId,
		roomId:        roomId,
		userId:        userId,
		lastHeartbeat: pt.now(),
	}
}

// Heartbeat refreshes a connection's liveness. Unknown connections are
// ignored: the entry was already reaped.
func (pt *PresenceTracker) Heartbeat(connId string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if e, ok := pt.entries[connId]; ok {
		e.lastHeartbeat = pt.now()
	}
}

// Forget drops a connection's entry without side effects. Used when the
// participant already left through the coordinator.
func (pt *PresenceTracker) Forget(connId string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	delete(pt.entries, connId)
}

// Unregister handles an explicit disconnect: the entry is removed and,
// if it was the member's last live connection, the member is made to
// leave exactly as a reaped connection would.
func (pt *PresenceTracker) Unregister(ctx context.Context, connId string) {
	pt.mu.Lock()
	e, ok := pt.entries[connId]
	if !ok {
		pt.mu.Unlock()
		return
	}
	delete(pt.entries, connId)
	last := !pt.hasConnectionLocked(e.roomId, e.userId)
	pt.mu.Unlock()

	pt.broadcaster.Unsubscribe(connId)
	if last {
		pt.evict(ctx, e)
	}
}

// Run starts the periodic reap sweep. It returns when Shutdown is
// called.
func (pt *PresenceTracker) Run() {
	ticker := time.NewTicker(pt.interval)
	defer func() {
		ticker.Stop()
		close(pt.done)
	}()

	for {
		select {
		case <-ticker.C:
			pt.reap(context.Background())
		case <-pt.stop:
			return
		}
	}
}

func (pt *PresenceTracker) Shutdown() {
	close(pt.stop)
	<-pt.done
}

// reap evicts every connection whose last heartbeat is older than the
// timeout. A silent disconnect is treated identically to an explicit
// leave, including host succession.
func (pt *PresenceTracker) reap(ctx context.Context) {
	cutoff := pt.now().Add(-pt.timeout)

	pt.mu.Lock()
	var expired []*presenceEntry
	for connId, e := range pt.entries {
		if e.lastHeartbeat.Before(cutoff) {
			delete(pt.entries, connId)
			expired = append(expired, e)
		}
	}

	// A member with another live connection isn't gone yet; only the
	// last expired connection triggers the leave.
	var evictions []*presenceEntry
	for _, e := range expired {
		if !pt.hasConnectionLocked(e.roomId, e.userId) {
			evictions = append(evictions, e)
		}
	}
	pt.mu.Unlock()

	for _, e := range expired {
		pt.broadcaster.Unsubscribe(e.connId)
	}

	for _, e := range evictions {
		pt.evict(ctx, e)
	}
}

func (pt *PresenceTracker) evict(ctx context.Context, e *presenceEntry) {
	pt.log.Printf("reaping user %d from room %q (connection %q)", e.userId, e.roomId, e.connId)

	err := pt.coordinator.Leave(ctx, e.roomId, e.userId)
	if err != nil && !errors.Is(err, types.ErrNotAMember) && !errors.Is(err, types.ErrRoomNotFound) {
		pt.log.Printf("reap leave for user %d in room %q: %v", e.userId, e.roomId, err)
	}
}

func (pt *PresenceTracker) hasConnectionLocked(roomId string, userId int) bool {
	for _, e := range pt.entries {
		if e.roomId == roomId && e.userId == userId {
			return true
		}
	}
	return false
}
