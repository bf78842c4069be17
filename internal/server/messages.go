package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/voxera/roomserver/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is a frame sent by a client over its websocket. Exactly
// one command field is set per frame.
type ClientMessage struct {
	BaseMessage
	Join       *Join       `json:"join,omitempty"`
	Leave      *Leave      `json:"leave,omitempty"`
	Publish    *Publish    `json:"publish,omitempty"`
	Audio      *Audio      `json:"audio,omitempty"`
	Role       *RoleChange `json:"role,omitempty"`
	Kick       *Kick       `json:"kick,omitempty"`
	Gift       *GiftSend   `json:"gift,omitempty"`
	PollCreate *PollCreate `json:"poll_create,omitempty"`
	PollVote   *PollVote   `json:"poll_vote,omitempty"`
	PollEnd    *PollEnd    `json:"poll_end,omitempty"`
	EndRoom    *EndRoom    `json:"end_room,omitempty"`
	UserId     int         `json:"-"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type Publish struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

type Audio struct {
	RoomId     string `json:"room_id"`
	UserId     int    `json:"user_id,omitempty"`
	IsMuted    *bool  `json:"is_muted,omitempty"`
	IsSpeaking *bool  `json:"is_speaking,omitempty"`
}

type RoleChange struct {
	RoomId        string     `json:"room_id"`
	ParticipantId int        `json:"participant_id"`
	Role          types.Role `json:"role"`
}

type Kick struct {
	RoomId        string `json:"room_id"`
	ParticipantId int    `json:"participant_id"`
}

type GiftSend struct {
	RoomId      string `json:"room_id"`
	RecipientId int    `json:"recipient_id"`
	GiftId      int    `json:"gift_id"`
	Quantity    int    `json:"quantity,omitempty"`
}

type PollCreate struct {
	RoomId   string   `json:"room_id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type PollVote struct {
	RoomId string `json:"room_id"`
	PollId string `json:"poll_id"`
	Option int    `json:"option"`
}

type PollEnd struct {
	RoomId string `json:"room_id"`
	PollId string `json:"poll_id"`
}

type EndRoom struct {
	RoomId string `json:"room_id"`
}

// ServerMessage is a frame sent to a client: either a response to one
// of its commands (Id echoes the command's) or a room event.
type ServerMessage struct {
	BaseMessage
	Response *Response  `json:"response,omitempty"`
	Event    *RoomEvent `json:"event,omitempty"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

func NoErrOK(id int, data map[string]any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func EventMessage(event *RoomEvent) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: event.Timestamp},
		Event:       event,
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

// ErrResponse maps a coordinator error onto a response frame.
func ErrResponse(id int, err error) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: statusForError(err),
			Error:        err.Error(),
		},
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrRoomNotFound),
		errors.Is(err, types.ErrParticipantNotFound),
		errors.Is(err, types.ErrGiftNotFound),
		errors.Is(err, types.ErrPollNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, types.ErrRoomFull),
		errors.Is(err, types.ErrRoomInactive),
		errors.Is(err, types.ErrAlreadyMember),
		errors.Is(err, types.ErrNotAMember),
		errors.Is(err, types.ErrAlreadyVoted):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidRoleTransition),
		errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrMuteLocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}
