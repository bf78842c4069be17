package server

import (
	"time"

	"github.com/voxera/roomserver/internal/types"
)

// EventKind identifies the variant carried by a RoomEvent.
type EventKind string

const (
	EventParticipantJoined EventKind = "participant_joined"
	EventParticipantLeft   EventKind = "participant_left"
	EventRoleChanged       EventKind = "role_changed"
	EventAudioStateChanged EventKind = "audio_state_changed"
	EventHostTransferred   EventKind = "host_transferred"
	EventRoomEnded         EventKind = "room_ended"
	EventChatMessage       EventKind = "chat_message"
	EventGiftSent          EventKind = "gift_sent"
	EventPollCreated       EventKind = "poll_created"
	EventPollVoteCast      EventKind = "poll_vote_cast"
	EventPollEnded         EventKind = "poll_ended"
)

// RoomEvent is a committed state change broadcast to every subscriber
// of a room. Exactly one payload field is non-nil, matching Kind.
type RoomEvent struct {
	Kind      EventKind `json:"kind"`
	RoomId    string    `json:"room_id"`
	ActorId   int       `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`

	ParticipantJoined *ParticipantJoined `json:"participant_joined,omitempty"`
	ParticipantLeft   *ParticipantLeft   `json:"participant_left,omitempty"`
	RoleChanged       *RoleChanged       `json:"role_changed,omitempty"`
	AudioStateChanged *AudioStateChanged `json:"audio_state_changed,omitempty"`
	HostTransferred   *HostTransferred   `json:"host_transferred,omitempty"`
	RoomEnded         *RoomEnded         `json:"room_ended,omitempty"`
	ChatMessage       *ChatMessage       `json:"chat_message,omitempty"`
	GiftSent          *GiftSent          `json:"gift_sent,omitempty"`
	PollCreated       *PollCreated       `json:"poll_created,omitempty"`
	PollVoteCast      *PollVoteCast      `json:"poll_vote_cast,omitempty"`
	PollEnded         *PollEnded         `json:"poll_ended,omitempty"`
}

type ParticipantJoined struct {
	Participant types.Participant `json:"participant"`
}

type ParticipantLeft struct {
	ParticipantId int        `json:"participant_id"`
	UserId        int        `json:"user_id"`
	Kicked        bool       `json:"kicked"`
	KickedBy      int        `json:"kicked_by,omitempty"`
	Role          types.Role `json:"role"`
}

type RoleChanged struct {
	ParticipantId int        `json:"participant_id"`
	UserId        int        `json:"user_id"`
	OldRole       types.Role `json:"old_role"`
	NewRole       types.Role `json:"new_role"`
}

type AudioStateChanged struct {
	ParticipantId int  `json:"participant_id"`
	UserId        int  `json:"user_id"`
	IsMuted       bool `json:"is_muted"`
	IsSpeaking    bool `json:"is_speaking"`
}

type HostTransferred struct {
	OldHostId int `json:"old_host_id"`
	NewHostId int `json:"new_host_id"`
}

type RoomEnded struct {
	EndedBy int `json:"ended_by,omitempty"`
}

type ChatMessage struct {
	SeqId    int    `json:"seq_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

type GiftSent struct {
	TransactionId int        `json:"transaction_id"`
	Gift          types.Gift `json:"gift"`
	SenderId      int        `json:"sender_id"`
	RecipientId   int        `json:"recipient_id"`
	Quantity      int        `json:"quantity"`
	TotalPrice    int        `json:"total_price"`
}

type PollCreated struct {
	Poll Poll `json:"poll"`
}

type PollVoteCast struct {
	PollId string `json:"poll_id"`
	UserId int    `json:"user_id"`
	Option int    `json:"option"`
	Counts []int  `json:"counts"`
}

type PollEnded struct {
	Poll Poll `json:"poll"`
}

func newRoomEvent(kind EventKind, roomId string, actorId int) *RoomEvent {
	return &RoomEvent{
		Kind:      kind,
		RoomId:    roomId,
		ActorId:   actorId,
		Timestamp: Now(),
	}
}

// Now returns the current UTC time rounded to millisecond precision.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
