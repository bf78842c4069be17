package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole(t *testing.T) {
	tcases := []struct {
		role        Role
		valid       bool
		rank        int
		isModerator bool
		canPublish  bool
	}{
		{RoleHost, true, 3, true, true},
		{RoleCoHost, true, 2, true, true},
		{RoleSpeaker, true, 1, false, true},
		{RoleListener, true, 0, false, false},
		{Role("admin"), false, -1, false, false},
		{Role(""), false, -1, false, false},
	}

	for _, tc := range tcases {
		t.Run(string(tc.role), func(t *testing.T) {
			assert.Equal(t, tc.valid, tc.role.Valid())
			assert.Equal(t, tc.rank, tc.role.Rank())
			assert.Equal(t, tc.isModerator, tc.role.IsModerator())
			assert.Equal(t, tc.canPublish, tc.role.CanPublish())
		})
	}
}

func TestRoleOrdering(t *testing.T) {
	assert.Greater(t, RoleHost.Rank(), RoleCoHost.Rank())
	assert.Greater(t, RoleCoHost.Rank(), RoleSpeaker.Rank())
	assert.Greater(t, RoleSpeaker.Rank(), RoleListener.Rank())
}
