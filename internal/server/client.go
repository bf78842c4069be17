package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxera/roomserver/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client owns one websocket connection for one authenticated user. A
// connection subscribes to at most one room at a time; joining another
// room replaces the subscription.
type Client struct {
	conn        *websocket.Conn
	coordinator *Coordinator
	tracker     *PresenceTracker
	log         *log.Logger
	user        types.User
	connId      string
	send        chan *ServerMessage
	stop        chan struct{}

	mu     sync.Mutex
	sub    *Subscription
	roomId string
}

func NewClient(user types.User, conn *websocket.Conn, coordinator *Coordinator, tracker *PresenceTracker, l *log.Logger) *Client {
	return &Client{
		conn:        conn,
		coordinator: coordinator,
		tracker:     tracker,
		log:         l,
		user:        user,
		connId:      uuid.NewString(),
		send:        make(chan *ServerMessage, 256),
		stop:        make(chan struct{}),
	}
}

// events returns the current subscription's channel, or nil when the
// connection is not in a room. A nil channel parks that select branch.
func (c *Client) events() <-chan *RoomEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub == nil {
		return nil
	}
	return c.sub.Events
}

func (c *Client) setSub(roomId string, sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sub = sub
	c.roomId = roomId
}

func (c *Client) clearSub() {
	c.setSub("", nil)
}

func (c *Client) currentRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.roomId
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case event, ok := <-c.events():
			if !ok {
				// room closed, or this connection fell behind and was
				// dropped by the fan-out
				c.tracker.Forget(c.connId)
				c.clearSub()
				continue
			}

			bytes, err := json.Marshal(EventMessage(event))
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.tracker.Heartbeat(c.connId)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	ctx := context.Background()

	switch {
	case msg.Join != nil:
		c.handleJoin(ctx, msg)
	case msg.Leave != nil:
		c.handleLeave(ctx, msg)
	case msg.Publish != nil:
		seqId, err := c.coordinator.SendMessage(ctx, msg.Publish.RoomId, msg.UserId, msg.Publish.Content)
		if err != nil {
			c.queueMessage(ErrResponse(msg.Id, err))
			return
		}
		c.queueMessage(NoErrOK(msg.Id, map[string]any{"seq_id": seqId}))
	case msg.Audio != nil:
		err := c.coordinator.SetAudioState(ctx, msg.Audio.RoomId, msg.UserId, msg.Audio.UserId,
			msg.Audio.IsMuted, msg.Audio.IsSpeaking)
		c.respond(msg.Id, err)
	case msg.Role != nil:
		err := c.coordinator.ChangeRole(ctx, msg.Role.RoomId, msg.UserId, msg.Role.ParticipantId, msg.Role.Role)
		c.respond(msg.Id, err)
	case msg.Kick != nil:
		err := c.coordinator.Kick(ctx, msg.Kick.RoomId, msg.UserId, msg.Kick.ParticipantId)
		c.respond(msg.Id, err)
	case msg.Gift != nil:
		err := c.coordinator.SendGift(ctx, msg.Gift.RoomId, msg.UserId, msg.Gift.RecipientId,
			msg.Gift.GiftId, msg.Gift.Quantity)
		c.respond(msg.Id, err)
	case msg.PollCreate != nil:
		poll, err := c.coordinator.CreatePoll(ctx, msg.PollCreate.RoomId, msg.UserId,
			msg.PollCreate.Question, msg.PollCreate.Options)
		if err != nil {
			c.queueMessage(ErrResponse(msg.Id, err))
			return
		}
		c.queueMessage(NoErrOK(msg.Id, map[string]any{"poll": poll}))
	case msg.PollVote != nil:
		err := c.coordinator.CastVote(ctx, msg.PollVote.RoomId, msg.UserId, msg.PollVote.PollId, msg.PollVote.Option)
		c.respond(msg.Id, err)
	case msg.PollEnd != nil:
		err := c.coordinator.EndPoll(ctx, msg.PollEnd.RoomId, msg.UserId, msg.PollEnd.PollId)
		c.respond(msg.Id, err)
	case msg.EndRoom != nil:
		err := c.coordinator.EndRoom(ctx, msg.EndRoom.RoomId, msg.UserId)
		c.respond(msg.Id, err)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) handleJoin(ctx context.Context, msg *ClientMessage) {
	roomId := msg.Join.RoomId

	participant, token, err := c.coordinator.Join(ctx, roomId, msg.UserId)
	if err != nil && !errors.Is(err, types.ErrAlreadyMember) {
		c.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	// a second connection for an existing membership attaches to the
	// stream without a new membership row
	if errors.Is(err, types.ErrAlreadyMember) {
		token, err = c.coordinator.IssueCredential(ctx, roomId, msg.UserId)
		if err != nil {
			c.log.Printf("reissue credential for user %d in room %q: %v", msg.UserId, roomId, err)
		}
	}

	// switching rooms ends the previous membership. Unregister runs the
	// leave unless another live connection still covers the member, the
	// same as a disconnect would.
	if prev := c.currentRoom(); prev != "" && prev != roomId {
		c.tracker.Unregister(ctx, c.connId)
		c.clearSub()
	}

	c.tracker.Register(roomId, msg.UserId, c.connId)

	snapshot, sub, err := c.coordinator.Subscribe(ctx, roomId, c.connId)
	if err != nil {
		c.tracker.Forget(c.connId)
		c.queueMessage(ErrResponse(msg.Id, err))
		return
	}
	c.setSub(roomId, sub)

	data := map[string]any{
		"room":         snapshot.Room,
		"participants": snapshot.Participants,
		"relay_token":  token,
	}
	if len(snapshot.Polls) > 0 {
		data["polls"] = snapshot.Polls
	}
	if participant.Id != 0 {
		data["participant"] = participant
	}

	c.queueMessage(NoErrOK(msg.Id, data))
}

func (c *Client) handleLeave(ctx context.Context, msg *ClientMessage) {
	roomId := msg.Leave.RoomId
	if roomId == "" {
		roomId = c.currentRoom()
	}
	if roomId == "" {
		c.queueMessage(ErrResponse(msg.Id, types.ErrNotAMember))
		return
	}

	// the stream stays attached until the leave commits, so a storage
	// failure leaves the member subscribed rather than silently cut off
	err := c.coordinator.Leave(ctx, roomId, msg.UserId)
	if err != nil && !errors.Is(err, types.ErrNotAMember) {
		c.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	c.coordinator.Unsubscribe(c.connId)
	c.tracker.Forget(c.connId)
	c.clearSub()

	if err != nil {
		c.queueMessage(ErrResponse(msg.Id, err))
		return
	}

	c.queueMessage(NoErrAccepted(msg.Id))
}

func (c *Client) respond(id int, err error) {
	if err != nil {
		c.queueMessage(ErrResponse(id, err))
		return
	}
	c.queueMessage(NoErrAccepted(id))
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	close(c.stop)
}

// cleanup runs when the read pump exits. Unregister ends the user's
// membership unless another live connection still represents them.
func (c *Client) cleanup() {
	c.tracker.Unregister(context.Background(), c.connId)
	c.clearSub()
	c.stopClient()
}
