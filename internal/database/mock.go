package database

import (
	"github.com/stretchr/testify/mock"

	"github.com/voxera/roomserver/internal/types"
)

type MockRoomRepository struct {
	mock.Mock
}

func (m *MockRoomRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRoomRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRoomRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRoomRepository) ListActiveRooms(params ListRoomsParams) ([]Room, error) {
	args := m.Called(params)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRoomRepository) ListHostlessActiveRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRoomRepository) EndRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockRoomRepository) JoinRoom(roomId, userId int) (Participant, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockRoomRepository) GetActiveParticipant(roomId, userId int) (Participant, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockRoomRepository) GetParticipantById(participantId int) (Participant, error) {
	args := m.Called(participantId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockRoomRepository) ListActiveParticipants(roomId int) ([]Participant, error) {
	args := m.Called(roomId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockRoomRepository) EarliestActiveCoHost(roomId int) (Participant, error) {
	args := m.Called(roomId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockRoomRepository) LeaveParticipant(participantId int) error {
	args := m.Called(participantId)
	return args.Error(0)
}
func (m *MockRoomRepository) UpdateParticipantRole(participantId int, role types.Role) error {
	args := m.Called(participantId, role)
	return args.Error(0)
}
func (m *MockRoomRepository) TransferHost(roomId, newHostParticipantId, demoteParticipantId int) error {
	args := m.Called(roomId, newHostParticipantId, demoteParticipantId)
	return args.Error(0)
}
func (m *MockRoomRepository) UpdateAudioState(participantId int, isMuted, isSpeaking bool) error {
	args := m.Called(participantId, isMuted, isSpeaking)
	return args.Error(0)
}
func (m *MockRoomRepository) CreateMessage(msg Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockRoomRepository) GetMessages(roomId, since, before, limit int) ([]Message, error) {
	args := m.Called(roomId, since, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRoomRepository) GetGift(giftId int) (Gift, error) {
	args := m.Called(giftId)
	return args.Get(0).(Gift), args.Error(1)
}
func (m *MockRoomRepository) ListGifts() ([]Gift, error) {
	args := m.Called()
	return args.Get(0).([]Gift), args.Error(1)
}
func (m *MockRoomRepository) CreateGiftTransaction(params GiftTransactionParams) (int, error) {
	args := m.Called(params)
	return args.Int(0), args.Error(1)
}
