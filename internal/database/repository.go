package database

import "github.com/voxera/roomserver/internal/types"

type RoomRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	ListActiveRooms(params ListRoomsParams) ([]Room, error)
	ListHostlessActiveRooms() ([]Room, error)
	EndRoom(roomId int) error

	JoinRoom(roomId, userId int) (Participant, error)
	GetActiveParticipant(roomId, userId int) (Participant, error)
	GetParticipantById(participantId int) (Participant, error)
	ListActiveParticipants(roomId int) ([]Participant, error)
	EarliestActiveCoHost(roomId int) (Participant, error)
	LeaveParticipant(participantId int) error
	UpdateParticipantRole(participantId int, role types.Role) error
	TransferHost(roomId, newHostParticipantId, demoteParticipantId int) error
	UpdateAudioState(participantId int, isMuted, isSpeaking bool) error

	CreateMessage(msg Message) error
	GetMessages(roomId, since, before, limit int) ([]Message, error)

	GetGift(giftId int) (Gift, error)
	ListGifts() ([]Gift, error)
	CreateGiftTransaction(params GiftTransactionParams) (int, error)
}
