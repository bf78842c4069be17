// Package media issues credentials for the external real-time audio
// relay. The relay itself is out of process; the coordinator only hands
// each participant a token scoped to the room's channel and a
// capability level derived from their role.
package media

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/voxera/roomserver/internal/types"
)

type Capability string

const (
	CapabilityPublish   Capability = "publish"
	CapabilitySubscribe Capability = "subscribe"
)

// CapabilityForRole maps a room role to a relay capability: hosts,
// co-hosts and speakers publish audio, listeners only subscribe.
func CapabilityForRole(role types.Role) Capability {
	if role.CanPublish() {
		return CapabilityPublish
	}
	return CapabilitySubscribe
}

type CredentialIssuer interface {
	IssueCredential(channel string, userId int, role types.Role) (string, error)
}

// RelayTokenIssuer mints HS256 tokens the relay validates on channel
// attach.
type RelayTokenIssuer struct {
	appId  string
	secret []byte
	ttl    time.Duration
}

const defaultTokenTTL = 24 * time.Hour

func NewRelayTokenIssuer(appId string, secret []byte) (*RelayTokenIssuer, error) {
	if appId == "" {
		return nil, fmt.Errorf("relay app id cannot be empty")
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("relay secret cannot be empty")
	}

	return &RelayTokenIssuer{
		appId:  appId,
		secret: secret,
		ttl:    defaultTokenTTL,
	}, nil
}

func (i *RelayTokenIssuer) IssueCredential(channel string, userId int, role types.Role) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("channel cannot be empty")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"app_id":     i.appId,
		"channel":    channel,
		"uid":        userId,
		"capability": string(CapabilityForRole(role)),
		"exp":        time.Now().Add(i.ttl).Unix(),
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign relay token: %w", err)
	}

	return signed, nil
}
