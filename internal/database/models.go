package database

import (
	"time"

	"github.com/voxera/roomserver/internal/types"
)

type Room struct {
	Id              int
	ExternalId      string
	Title           string
	Description     string
	HostId          int
	RoomType        types.RoomType
	AudioMode       types.AudioMode
	MaxParticipants int
	IsActive        bool
	SeqId           int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Participant struct {
	Id         int
	RoomId     int
	UserId     int
	Username   string
	Role       types.Role
	IsMuted    bool
	IsSpeaking bool
	JoinedAt   time.Time
	LeftAt     *time.Time
}

type Message struct {
	Id        int
	SeqId     int
	RoomId    int
	UserId    int
	Content   string
	Kind      string
	CreatedAt time.Time
}

type Gift struct {
	Id       int
	Name     string
	Icon     string
	Price    int
	Category string
	IsActive bool
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	UserId       int
	Username     string
	PasswordHash string
}

type CreateRoomParams struct {
	ExternalId      string
	Title           string
	Description     string
	HostId          int
	RoomType        types.RoomType
	AudioMode       types.AudioMode
	MaxParticipants int
}

type ListRoomsParams struct {
	RoomType  types.RoomType
	AudioMode types.AudioMode
	Offset    int
	Limit     int
}

type GiftTransactionParams struct {
	GiftId     int
	SenderId   int
	ReceiverId int
	RoomId     int
	Quantity   int
	TotalPrice int
}
