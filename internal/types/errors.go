package types

import "errors"

// Domain errors returned by the session coordinator. Precondition
// errors reflect a genuine state conflict and are not retried;
// authorization errors are surfaced as permission denied.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrRoomNotFound          = errors.New("room not found")
	ErrRoomInactive          = errors.New("room is not active")
	ErrRoomFull              = errors.New("room is full")
	ErrAlreadyMember         = errors.New("already a member of the room")
	ErrNotAMember            = errors.New("not a member of the room")
	ErrParticipantNotFound   = errors.New("participant not found")
	ErrForbidden             = errors.New("not permitted")
	ErrInvalidRoleTransition = errors.New("invalid role transition")
	ErrMuteLocked            = errors.New("mute lock is active")
	ErrGiftNotFound          = errors.New("gift not found")
	ErrPollNotFound          = errors.New("poll not found")
	ErrAlreadyVoted          = errors.New("already voted in poll")
	ErrUnknownConnection     = errors.New("unknown connection")
)
