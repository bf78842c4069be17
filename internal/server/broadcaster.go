package server

import (
	"log"
	"sync"
)

// eventBufferSize is the per-subscriber event queue depth. A subscriber
// whose queue fills is dropped rather than allowed to stall the room.
const eventBufferSize = 64

// Subscription is a handle to a room's event stream. The Events channel
// is closed when the subscription is dropped, the room ends, or the
// broadcaster shuts down.
type Subscription struct {
	ConnId string
	RoomId string
	Events chan *RoomEvent
}

// Broadcaster fans committed room events out to every live subscriber
// of a room. Publish is only called by the coordinator after a durable
// commit, while holding the room's lock, so per-room delivery order
// matches commit order.
type Broadcaster struct {
	log *log.Logger

	mu    sync.Mutex
	rooms map[string]map[string]*Subscription
	conns map[string]*Subscription
}

func NewBroadcaster(logger *log.Logger) *Broadcaster {
	return &Broadcaster{
		log:   logger,
		rooms: make(map[string]map[string]*Subscription),
		conns: make(map[string]*Subscription),
	}
}

// Subscribe registers a connection on a room and returns its event
// handle. A connection holds at most one subscription; subscribing
// again replaces the previous one.
func (b *Broadcaster) Subscribe(roomId, connId string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.conns[connId]; ok {
		b.dropLocked(prev)
	}

	sub := &Subscription{
		ConnId: connId,
		RoomId: roomId,
		Events: make(chan *RoomEvent, eventBufferSize),
	}

	if b.rooms[roomId] == nil {
		b.rooms[roomId] = make(map[string]*Subscription)
	}
	b.rooms[roomId][connId] = sub
	b.conns[connId] = sub

	return sub
}

// Unsubscribe removes a connection's subscription. Unsubscribing an
// unknown connection is a no-op.
func (b *Broadcaster) Unsubscribe(connId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.conns[connId]; ok {
		b.dropLocked(sub)
	}
}

// Publish delivers an event to every subscriber of the room. A
// subscriber whose buffer is full is dropped and its channel closed.
func (b *Broadcaster) Publish(roomId string, event *RoomEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.rooms[roomId] {
		select {
		case sub.Events <- event:
		default:
			b.log.Printf("dropping slow subscriber %q on room %q", sub.ConnId, roomId)
			b.dropLocked(sub)
		}
	}
}

// CloseRoom drops every subscription on the room. Events already queued
// remain readable until each channel drains.
func (b *Broadcaster) CloseRoom(roomId string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.rooms[roomId] {
		delete(b.conns, sub.ConnId)
		close(sub.Events)
	}
	delete(b.rooms, roomId)
}

// SubscriberCount reports the number of live subscriptions on a room.
func (b *Broadcaster) SubscriberCount(roomId string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.rooms[roomId])
}

// Shutdown drops every subscription across all rooms.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.conns {
		close(sub.Events)
	}
	b.conns = make(map[string]*Subscription)
	b.rooms = make(map[string]map[string]*Subscription)
}

func (b *Broadcaster) dropLocked(sub *Subscription) {
	if subs, ok := b.rooms[sub.RoomId]; ok {
		if cur, ok := subs[sub.ConnId]; ok && cur == sub {
			delete(subs, sub.ConnId)
			if len(subs) == 0 {
				delete(b.rooms, sub.RoomId)
			}
		}
	}
	if cur, ok := b.conns[sub.ConnId]; ok && cur == sub {
		delete(b.conns, sub.ConnId)
	}
	close(sub.Events)
}
