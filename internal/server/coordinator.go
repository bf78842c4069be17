package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/teris-io/shortid"

	"github.com/voxera/roomserver/internal/database"
	"github.com/voxera/roomserver/internal/media"
	"github.com/voxera/roomserver/internal/stats"
	"github.com/voxera/roomserver/internal/types"
)

const (
	statActiveRooms     = "ActiveRooms"
	statConnections     = "Connections"
	statEventsPublished = "EventsPublished"
	statTotalJoins      = "TotalJoins"
)

const defaultMaxParticipants = 50

// MuteLockFunc reports whether a moderator-imposed mute lock is active
// for a user in a room. The lock's storage and semantics belong to the
// moderation subsystem; the coordinator only consults it before
// allowing a self-unmute.
type MuteLockFunc func(ctx context.Context, roomId string, userId int) bool

// Coordinator is the sole writer of room and participant state. Every
// mutating operation on a room runs under that room's lock, held across
// the storage round-trips, so invariant checks and their writes never
// interleave with another operation on the same room. Operations on
// different rooms proceed in parallel.
type Coordinator struct {
	log         *log.Logger
	db          database.RoomRepository
	broadcaster *Broadcaster
	media       media.CredentialIssuer
	stats       stats.StatsProvider
	muteLock    MuteLockFunc

	generateRoomId func() (string, error)

	mu        sync.Mutex
	roomLocks map[string]*sync.Mutex
	polls     map[string]*roomPolls
}

func NewCoordinator(logger *log.Logger, db database.RoomRepository, b *Broadcaster, issuer media.CredentialIssuer, su stats.StatsProvider) (*Coordinator, error) {
	su.RegisterMetric(statActiveRooms)
	su.RegisterMetric(statConnections)
	su.RegisterMetric(statEventsPublished)
	su.RegisterMetric(statTotalJoins)

	return &Coordinator{
		log:            logger,
		db:             db,
		broadcaster:    b,
		media:          issuer,
		stats:          su,
		generateRoomId: shortid.Generate,
		roomLocks:      make(map[string]*sync.Mutex),
		polls:          make(map[string]*roomPolls),
	}, nil
}

// SetMuteLock installs the moderation subsystem's mute-lock check.
func (c *Coordinator) SetMuteLock(fn MuteLockFunc) {
	c.muteLock = fn
}

// lockRoom returns the mutex serializing all mutations on a room.
func (c *Coordinator) lockRoom(roomId string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.roomLocks[roomId]
	if !ok {
		l = &sync.Mutex{}
		c.roomLocks[roomId] = l
	}

	return l
}

func (c *Coordinator) roomPollsFor(roomId string) *roomPolls {
	c.mu.Lock()
	defer c.mu.Unlock()

	rp, ok := c.polls[roomId]
	if !ok {
		rp = newRoomPolls()
		c.polls[roomId] = rp
	}

	return rp
}

// forgetRoom releases the per-room state once a room has ended.
func (c *Coordinator) forgetRoom(roomId string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.roomLocks, roomId)
	delete(c.polls, roomId)
}

// publish hands a committed event to the fan-out. Callers hold the room
// lock, so subscribers observe events in commit order.
func (c *Coordinator) publish(event *RoomEvent) {
	c.broadcaster.Publish(event.RoomId, event)
	c.stats.Incr(statEventsPublished)
}

func (c *Coordinator) activeRoom(roomId string) (database.Room, error) {
	room, err := c.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// don't let requests for arbitrary ids accumulate locks
			c.forgetRoom(roomId)
			return database.Room{}, types.ErrRoomNotFound
		}
		return database.Room{}, fmt.Errorf("get room %q: %w", roomId, err)
	}

	if !room.IsActive {
		c.forgetRoom(roomId)
		return database.Room{}, types.ErrRoomInactive
	}

	return room, nil
}

type CreateRoomParams struct {
	Title           string
	Description     string
	RoomType        types.RoomType
	AudioMode       types.AudioMode
	MaxParticipants int
}

// CreateRoom creates a room with the creator installed as host in the
// same commit, then hands back the room and the creator's relay
// credential.
func (c *Coordinator) CreateRoom(ctx context.Context, params CreateRoomParams, creatorId int) (types.Room, string, error) {
	if params.Title == "" {
		return types.Room{}, "", types.ErrInvalidInput
	}
	if params.RoomType == "" {
		params.RoomType = types.RoomTypePublic
	}
	if params.AudioMode == "" {
		params.AudioMode = types.AudioModeConversation
	}
	if !params.RoomType.Valid() || !params.AudioMode.Valid() {
		return types.Room{}, "", types.ErrInvalidInput
	}
	if params.MaxParticipants < 0 {
		return types.Room{}, "", types.ErrInvalidInput
	}
	if params.MaxParticipants == 0 {
		params.MaxParticipants = defaultMaxParticipants
	}

	externalId, err := c.generateRoomId()
	if err != nil {
		return types.Room{}, "", fmt.Errorf("generate room id: %w", err)
	}

	dbRoom, err := c.db.CreateRoom(database.CreateRoomParams{
		ExternalId:      externalId,
		Title:           params.Title,
		Description:     params.Description,
		HostId:          creatorId,
		RoomType:        params.RoomType,
		AudioMode:       params.AudioMode,
		MaxParticipants: params.MaxParticipants,
	})
	if err != nil {
		return types.Room{}, "", fmt.Errorf("create room: %w", err)
	}

	c.stats.Incr(statActiveRooms)
	c.log.Printf("room %q created by user %d", dbRoom.ExternalId, creatorId)

	token := c.issueCredential(dbRoom.ExternalId, creatorId, types.RoleHost)

	return toRoom(dbRoom), token, nil
}

// Join admits a user to a room as a listener. The capacity and
// duplicate-membership checks run inside the store's transaction while
// the room lock is held, so concurrent joins cannot over-admit.
func (c *Coordinator) Join(ctx context.Context, roomId string, userId int) (types.Participant, string, error) {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return types.Participant{}, "", err
	}

	room, err := c.activeRoom(roomId)
	if err != nil {
		return types.Participant{}, "", err
	}

	dbPart, err := c.db.JoinRoom(room.Id, userId)
	if err != nil {
		return types.Participant{}, "", err
	}

	user, err := c.db.GetAccountById(userId)
	if err != nil {
		c.log.Printf("get account %d after join: %v", userId, err)
	}
	dbPart.Username = user.Username

	participant := toParticipant(dbPart)

	c.stats.Incr(statTotalJoins)

	event := newRoomEvent(EventParticipantJoined, roomId, userId)
	event.ParticipantJoined = &ParticipantJoined{Participant: participant}
	c.publish(event)

	token := c.issueCredential(roomId, userId, participant.Role)

	return participant, token, nil
}

// Leave removes a user's membership. If the departing member was host,
// succession runs before the lock is released: the earliest-joined
// co-host is promoted, or the room ends when none exists.
func (c *Coordinator) Leave(ctx context.Context, roomId string, userId int) error {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.forgetRoom(roomId)
			return types.ErrRoomNotFound
		}
		return fmt.Errorf("get room %q: %w", roomId, err)
	}

	participant, err := c.db.GetActiveParticipant(room.Id, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotAMember
		}
		return fmt.Errorf("get participant: %w", err)
	}

	return c.removeParticipant(room, participant, 0)
}

// Kick forcibly removes a participant on behalf of a moderator. The
// target's membership ends exactly as an explicit leave, with the
// kicked flag set on the emitted event.
func (c *Coordinator) Kick(ctx context.Context, roomId string, actorId, targetParticipantId int) error {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	actor, err := c.db.GetActiveParticipant(room.Id, actorId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrForbidden
		}
		return fmt.Errorf("get actor: %w", err)
	}

	if !actor.Role.IsModerator() {
		return types.ErrForbidden
	}

	target, err := c.db.GetParticipantById(targetParticipantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrParticipantNotFound
		}
		return fmt.Errorf("get target: %w", err)
	}
	if target.RoomId != room.Id || target.LeftAt != nil {
		return types.ErrParticipantNotFound
	}

	// the host is never kickable, and a co-host may not kick a peer
	if target.Role == types.RoleHost {
		return types.ErrForbidden
	}
	if actor.Role == types.RoleCoHost && target.Role == types.RoleCoHost {
		return types.ErrForbidden
	}

	return c.removeParticipant(room, target, actor.UserId)
}

// removeParticipant ends a membership and runs host succession when the
// departing member held the host role. Callers hold the room lock.
func (c *Coordinator) removeParticipant(room database.Room, participant database.Participant, kickedBy int) error {
	if err := c.db.LeaveParticipant(participant.Id); err != nil {
		return fmt.Errorf("leave participant %d: %w", participant.Id, err)
	}

	event := newRoomEvent(EventParticipantLeft, room.ExternalId, participant.UserId)
	event.ParticipantLeft = &ParticipantLeft{
		ParticipantId: participant.Id,
		UserId:        participant.UserId,
		Kicked:        kickedBy != 0,
		KickedBy:      kickedBy,
		Role:          participant.Role,
	}
	c.publish(event)

	if participant.Role != types.RoleHost || !room.IsActive {
		return nil
	}

	return c.succeedHost(room, participant.UserId)
}

// succeedHost promotes the earliest-joined co-host, or ends the room
// when no co-host remains. Both paths commit their two-row transition
// atomically in the store.
func (c *Coordinator) succeedHost(room database.Room, oldHostId int) error {
	coHost, err := c.db.EarliestActiveCoHost(room.Id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("find successor for room %q: %w", room.ExternalId, err)
		}

		// no successor: the room ends
		if err := c.db.EndRoom(room.Id); err != nil {
			return fmt.Errorf("end room %q: %w", room.ExternalId, err)
		}

		c.stats.Decr(statActiveRooms)
		c.log.Printf("room %q ended: host %d left with no co-host", room.ExternalId, oldHostId)

		event := newRoomEvent(EventRoomEnded, room.ExternalId, oldHostId)
		event.RoomEnded = &RoomEnded{}
		c.publish(event)

		c.broadcaster.CloseRoom(room.ExternalId)
		c.forgetRoom(room.ExternalId)
		return nil
	}

	if err := c.db.TransferHost(room.Id, coHost.Id, 0); err != nil {
		return fmt.Errorf("transfer host in room %q: %w", room.ExternalId, err)
	}

	c.log.Printf("room %q host transferred from user %d to user %d", room.ExternalId, oldHostId, coHost.UserId)

	event := newRoomEvent(EventHostTransferred, room.ExternalId, oldHostId)
	event.HostTransferred = &HostTransferred{OldHostId: oldHostId, NewHostId: coHost.UserId}
	c.publish(event)

	return nil
}

// ChangeRole moves a participant to a new role. Promotions climb the
// listener→speaker→co-host→host ladder one step at a time; demotions
// are free for an authorized actor. Assigning host transfers the role:
// the acting host is demoted to co-host in the same commit.
func (c *Coordinator) ChangeRole(ctx context.Context, roomId string, actorId, targetParticipantId int, newRole types.Role) error {
	if !newRole.Valid() {
		return types.ErrInvalidRoleTransition
	}

	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	actor, err := c.db.GetActiveParticipant(room.Id, actorId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrForbidden
		}
		return fmt.Errorf("get actor: %w", err)
	}

	if !actor.Role.IsModerator() {
		return types.ErrForbidden
	}

	target, err := c.db.GetParticipantById(targetParticipantId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrParticipantNotFound
		}
		return fmt.Errorf("get target: %w", err)
	}
	if target.RoomId != room.Id || target.LeftAt != nil {
		return types.ErrParticipantNotFound
	}

	if newRole == target.Role {
		return nil
	}

	// only the host hands off the host role, and only the host's own
	// role changes through that handoff
	if newRole == types.RoleHost {
		if actor.Role != types.RoleHost {
			return types.ErrForbidden
		}
		if target.UserId == actor.UserId {
			return nil
		}

		if err := c.db.TransferHost(room.Id, target.Id, actor.Id); err != nil {
			return fmt.Errorf("transfer host: %w", err)
		}

		event := newRoomEvent(EventHostTransferred, roomId, actorId)
		event.HostTransferred = &HostTransferred{OldHostId: actor.UserId, NewHostId: target.UserId}
		c.publish(event)

		return nil
	}

	// the sole host cannot be demoted; succession is the only way the
	// host role moves
	if target.Role == types.RoleHost {
		if actor.Role != types.RoleHost {
			return types.ErrForbidden
		}
		return types.ErrInvalidRoleTransition
	}

	// promotions climb one rung at a time; demotions below the host are
	// open to any moderator, including a co-host stepping down
	if newRole.Rank() > target.Role.Rank() && newRole.Rank() != target.Role.Rank()+1 {
		return types.ErrInvalidRoleTransition
	}

	if err := c.db.UpdateParticipantRole(target.Id, newRole); err != nil {
		return fmt.Errorf("update role: %w", err)
	}

	event := newRoomEvent(EventRoleChanged, roomId, actorId)
	event.RoleChanged = &RoleChanged{
		ParticipantId: target.Id,
		UserId:        target.UserId,
		OldRole:       target.Role,
		NewRole:       newRole,
	}
	c.publish(event)

	return nil
}

// SetAudioState updates a participant's mute/speaking flags. Members
// manage their own state; a self-unmute is refused while a moderation
// mute lock is active. Moderators may mute or unmute anyone, but only
// the member themselves reports speaking.
func (c *Coordinator) SetAudioState(ctx context.Context, roomId string, actorId, targetUserId int, isMuted, isSpeaking *bool) error {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	actor, err := c.db.GetActiveParticipant(room.Id, actorId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotAMember
		}
		return fmt.Errorf("get actor: %w", err)
	}

	target := actor
	if targetUserId != 0 && targetUserId != actorId {
		if !actor.Role.IsModerator() {
			return types.ErrForbidden
		}
		if isSpeaking != nil {
			return types.ErrForbidden
		}

		target, err = c.db.GetActiveParticipant(room.Id, targetUserId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.ErrParticipantNotFound
			}
			return fmt.Errorf("get target: %w", err)
		}
	}

	muted := target.IsMuted
	speaking := target.IsSpeaking
	if isMuted != nil {
		if target.UserId == actorId && target.IsMuted && !*isMuted {
			if c.muteLock != nil && c.muteLock(ctx, roomId, actorId) {
				return types.ErrMuteLocked
			}
		}
		muted = *isMuted
	}
	if isSpeaking != nil {
		speaking = *isSpeaking
	}

	if err := c.db.UpdateAudioState(target.Id, muted, speaking); err != nil {
		return fmt.Errorf("update audio state: %w", err)
	}

	event := newRoomEvent(EventAudioStateChanged, roomId, actorId)
	event.AudioStateChanged = &AudioStateChanged{
		ParticipantId: target.Id,
		UserId:        target.UserId,
		IsMuted:       muted,
		IsSpeaking:    speaking,
	}
	c.publish(event)

	return nil
}

// EndRoom deactivates a room on the host's request, closing out every
// live membership in the same commit.
func (c *Coordinator) EndRoom(ctx context.Context, roomId string, actorId int) error {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	actor, err := c.db.GetActiveParticipant(room.Id, actorId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrForbidden
		}
		return fmt.Errorf("get actor: %w", err)
	}
	if actor.Role != types.RoleHost {
		return types.ErrForbidden
	}

	if err := c.db.EndRoom(room.Id); err != nil {
		return fmt.Errorf("end room %q: %w", roomId, err)
	}

	c.stats.Decr(statActiveRooms)
	c.log.Printf("room %q ended by host %d", roomId, actorId)

	event := newRoomEvent(EventRoomEnded, roomId, actorId)
	event.RoomEnded = &RoomEnded{EndedBy: actorId}
	c.publish(event)

	c.broadcaster.CloseRoom(roomId)
	c.forgetRoom(roomId)

	return nil
}

// Snapshot is the room state delivered to a new subscriber, consistent
// with the first event that follows it.
type Snapshot struct {
	Room         types.Room          `json:"room"`
	Participants []types.Participant `json:"participants"`
	Polls        []Poll              `json:"polls,omitempty"`
}

// Subscribe attaches a connection to a room's event stream and returns
// the participant roster as of subscription time. The snapshot is read
// and the subscription registered under the room lock, so no event is
// lost or duplicated between them.
func (c *Coordinator) Subscribe(ctx context.Context, roomId, connId string) (*Snapshot, *Subscription, error) {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return nil, nil, err
	}

	dbParticipants, err := c.db.ListActiveParticipants(room.Id)
	if err != nil {
		return nil, nil, fmt.Errorf("list participants: %w", err)
	}

	participants := make([]types.Participant, len(dbParticipants))
	for i, p := range dbParticipants {
		participants[i] = toParticipant(p)
	}

	sub := c.broadcaster.Subscribe(roomId, connId)
	c.stats.Incr(statConnections)

	return &Snapshot{
		Room:         toRoom(room),
		Participants: participants,
		Polls:        c.roomPollsFor(roomId).snapshot(),
	}, sub, nil
}

// Unsubscribe detaches a connection from its room stream. Idempotent.
func (c *Coordinator) Unsubscribe(connId string) {
	c.broadcaster.Unsubscribe(connId)
}

// SendMessage persists a chat message under the room's sequence and
// broadcasts it.
func (c *Coordinator) SendMessage(ctx context.Context, roomId string, userId int, content string) (int, error) {
	if content == "" {
		return 0, types.ErrInvalidInput
	}

	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return 0, err
	}

	sender, err := c.db.GetActiveParticipant(room.Id, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, types.ErrNotAMember
		}
		return 0, fmt.Errorf("get sender: %w", err)
	}

	seqId := room.SeqId + 1
	if err := c.db.CreateMessage(database.Message{
		SeqId:     seqId,
		RoomId:    room.Id,
		UserId:    userId,
		Content:   content,
		Kind:      "text",
		CreatedAt: Now(),
	}); err != nil {
		return 0, fmt.Errorf("create message: %w", err)
	}

	event := newRoomEvent(EventChatMessage, roomId, userId)
	event.ChatMessage = &ChatMessage{
		SeqId:    seqId,
		UserId:   userId,
		Username: sender.Username,
		Content:  content,
	}
	c.publish(event)

	return seqId, nil
}

// SendGift records a gift transaction from one live member to another
// and broadcasts it. The message-log entry is best effort and never
// blocks the gift itself.
func (c *Coordinator) SendGift(ctx context.Context, roomId string, senderId, recipientId, giftId, quantity int) error {
	if quantity <= 0 {
		quantity = 1
	}

	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	if _, err := c.db.GetActiveParticipant(room.Id, senderId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotAMember
		}
		return fmt.Errorf("get sender: %w", err)
	}

	recipient, err := c.db.GetActiveParticipant(room.Id, recipientId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrParticipantNotFound
		}
		return fmt.Errorf("get recipient: %w", err)
	}

	gift, err := c.db.GetGift(giftId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrGiftNotFound
		}
		return fmt.Errorf("get gift: %w", err)
	}

	txId, err := c.db.CreateGiftTransaction(database.GiftTransactionParams{
		GiftId:     gift.Id,
		SenderId:   senderId,
		ReceiverId: recipientId,
		RoomId:     room.Id,
		Quantity:   quantity,
		TotalPrice: gift.Price * quantity,
	})
	if err != nil {
		return fmt.Errorf("create gift transaction: %w", err)
	}

	if err := c.db.CreateMessage(database.Message{
		SeqId:     room.SeqId + 1,
		RoomId:    room.Id,
		UserId:    senderId,
		Content:   fmt.Sprintf("sent %s to %s", gift.Name, recipient.Username),
		Kind:      "gift",
		CreatedAt: Now(),
	}); err != nil {
		c.log.Printf("log gift message in room %q: %v", roomId, err)
	}

	event := newRoomEvent(EventGiftSent, roomId, senderId)
	event.GiftSent = &GiftSent{
		TransactionId: txId,
		Gift: types.Gift{
			Id:       gift.Id,
			Name:     gift.Name,
			Icon:     gift.Icon,
			Price:    gift.Price,
			Category: gift.Category,
		},
		SenderId:    senderId,
		RecipientId: recipientId,
		Quantity:    quantity,
		TotalPrice:  gift.Price * quantity,
	}
	c.publish(event)

	return nil
}

// CreatePoll opens a live poll in a room. Moderators only.
func (c *Coordinator) CreatePoll(ctx context.Context, roomId string, actorId int, question string, options []string) (*Poll, error) {
	if question == "" || len(options) < 2 {
		return nil, types.ErrInvalidInput
	}

	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return nil, err
	}

	actor, err := c.db.GetActiveParticipant(room.Id, actorId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotAMember
		}
		return nil, fmt.Errorf("get actor: %w", err)
	}
	if !actor.Role.IsModerator() {
		return nil, types.ErrForbidden
	}

	poll := c.roomPollsFor(roomId).create(question, options, actorId)

	event := newRoomEvent(EventPollCreated, roomId, actorId)
	event.PollCreated = &PollCreated{Poll: *poll}
	c.publish(event)

	return poll, nil
}

// CastVote records a member's single vote on a live poll.
func (c *Coordinator) CastVote(ctx context.Context, roomId string, userId int, pollId string, option int) error {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	if _, err := c.db.GetActiveParticipant(room.Id, userId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotAMember
		}
		return fmt.Errorf("get voter: %w", err)
	}

	poll, err := c.roomPollsFor(roomId).vote(pollId, userId, option)
	if err != nil {
		return err
	}

	event := newRoomEvent(EventPollVoteCast, roomId, userId)
	event.PollVoteCast = &PollVoteCast{
		PollId: pollId,
		UserId: userId,
		Option: option,
		Counts: append([]int(nil), poll.Counts...),
	}
	c.publish(event)

	return nil
}

// EndPoll closes a live poll. The poll's creator or the host may end it.
func (c *Coordinator) EndPoll(ctx context.Context, roomId string, actorId int, pollId string) error {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return err
	}

	actor, err := c.db.GetActiveParticipant(room.Id, actorId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotAMember
		}
		return fmt.Errorf("get actor: %w", err)
	}

	rp := c.roomPollsFor(roomId)
	poll, ok := rp.get(pollId)
	if !ok || !poll.Active {
		return types.ErrPollNotFound
	}

	if poll.CreatedBy != actorId && actor.Role != types.RoleHost {
		return types.ErrForbidden
	}

	ended, err := rp.end(pollId)
	if err != nil {
		return err
	}

	event := newRoomEvent(EventPollEnded, roomId, actorId)
	event.PollEnded = &PollEnded{Poll: *ended}
	c.publish(event)

	return nil
}

// IssueCredential mints a fresh relay credential for a member's current
// role, used after a role change moves them across the publish boundary.
func (c *Coordinator) IssueCredential(ctx context.Context, roomId string, userId int) (string, error) {
	lock := c.lockRoom(roomId)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.activeRoom(roomId)
	if err != nil {
		return "", err
	}

	participant, err := c.db.GetActiveParticipant(room.Id, userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", types.ErrNotAMember
		}
		return "", fmt.Errorf("get participant: %w", err)
	}

	token, err := c.media.IssueCredential(roomId, userId, participant.Role)
	if err != nil {
		return "", fmt.Errorf("issue relay credential: %w", err)
	}

	return token, nil
}

// issueCredential is the best-effort variant used on join and create:
// membership is already committed, so a relay failure downgrades to an
// empty token the client can re-request.
func (c *Coordinator) issueCredential(roomId string, userId int, role types.Role) string {
	token, err := c.media.IssueCredential(roomId, userId, role)
	if err != nil {
		c.log.Printf("issue relay credential for user %d in room %q: %v", userId, roomId, err)
		return ""
	}

	return token
}

// RepairHostlessRooms re-runs succession for any active room whose
// recorded host has no live membership, which can only result from a
// crash between the succession writes. Intended to run at startup.
func (c *Coordinator) RepairHostlessRooms(ctx context.Context) error {
	rooms, err := c.db.ListHostlessActiveRooms()
	if err != nil {
		return fmt.Errorf("list hostless rooms: %w", err)
	}

	for _, room := range rooms {
		lock := c.lockRoom(room.ExternalId)
		lock.Lock()
		c.log.Printf("repairing hostless room %q", room.ExternalId)
		if err := c.succeedHost(room, room.HostId); err != nil {
			c.log.Printf("repair room %q: %v", room.ExternalId, err)
		}
		lock.Unlock()
	}

	return nil
}

func toRoom(r database.Room) types.Room {
	return types.Room{
		Id:              r.Id,
		ExternalId:      r.ExternalId,
		Title:           r.Title,
		Description:     r.Description,
		HostId:          r.HostId,
		RoomType:        r.RoomType,
		AudioMode:       r.AudioMode,
		MaxParticipants: r.MaxParticipants,
		IsActive:        r.IsActive,
		SeqId:           r.SeqId,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toParticipant(p database.Participant) types.Participant {
	return types.Participant{
		Id:         p.Id,
		RoomId:     p.RoomId,
		UserId:     p.UserId,
		Username:   p.Username,
		Role:       p.Role,
		IsMuted:    p.IsMuted,
		IsSpeaking: p.IsSpeaking,
		JoinedAt:   p.JoinedAt,
		LeftAt:     p.LeftAt,
	}
}
