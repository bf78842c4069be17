package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
)

func (rt RoomType) Valid() bool {
	return rt == RoomTypePublic || rt == RoomTypePrivate
}

type AudioMode string

const (
	AudioModeConversation AudioMode = "conversation"
	AudioModeMusic        AudioMode = "music"
	AudioModePodcast      AudioMode = "podcast"
	AudioModeBroadcast    AudioMode = "broadcast"
)

func (am AudioMode) Valid() bool {
	switch am {
	case AudioModeConversation, AudioModeMusic, AudioModePodcast, AudioModeBroadcast:
		return true
	}
	return false
}

type Room struct {
	Id              int       `json:"id"`
	ExternalId      string    `json:"external_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	HostId          int       `json:"host_id"`
	RoomType        RoomType  `json:"room_type"`
	AudioMode       AudioMode `json:"audio_mode"`
	MaxParticipants int       `json:"max_participants"`
	IsActive        bool      `json:"is_active"`
	SeqId           int       `json:"seq_id"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

type Participant struct {
	Id         int        `json:"id"`
	RoomId     int        `json:"room_id"`
	UserId     int        `json:"user_id"`
	Username   string     `json:"username,omitempty"`
	Role       Role       `json:"role"`
	IsMuted    bool       `json:"is_muted"`
	IsSpeaking bool       `json:"is_speaking"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
}

type Message struct {
	SeqId     int       `json:"seq_id"`
	RoomId    int       `json:"room_id"`
	UserId    int       `json:"user_id"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Gift struct {
	Id       int    `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Price    int    `json:"price"`
	Category string `json:"category,omitempty"`
}
