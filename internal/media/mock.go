package media

import (
	"github.com/stretchr/testify/mock"

	"github.com/voxera/roomserver/internal/types"
)

type MockCredentialIssuer struct {
	mock.Mock
}

func (m *MockCredentialIssuer) IssueCredential(channel string, userId int, role types.Role) (string, error) {
	args := m.Called(channel, userId, role)
	return args.String(0), args.Error(1)
}
