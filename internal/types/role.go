package types

// Role is a participant's position in a room. Exactly one participant
// holds RoleHost while the room is active.
type Role string

const (
	RoleHost     Role = "host"
	RoleCoHost   Role = "co-host"
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleCoHost, RoleSpeaker, RoleListener:
		return true
	}
	return false
}

// Rank orders roles for promotion checks: listener < speaker < co-host < host.
func (r Role) Rank() int {
	switch r {
	case RoleHost:
		return 3
	case RoleCoHost:
		return 2
	case RoleSpeaker:
		return 1
	case RoleListener:
		return 0
	}
	return -1
}

// IsModerator reports whether the role carries host/co-host privileges.
func (r Role) IsModerator() bool {
	return r == RoleHost || r == RoleCoHost
}

// CanPublish reports whether the role may publish audio to the media relay.
func (r Role) CanPublish() bool {
	return r == RoleHost || r == RoleCoHost || r == RoleSpeaker
}
