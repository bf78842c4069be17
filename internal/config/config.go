package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const DefaultPresenceTimeout = 90 * time.Second

type Config struct {
	DatabaseDSN     string
	ServerAddr      string
	SigningKey      []byte
	AllowedOrigins  []string
	RelayAppId      string
	RelayKey        string
	PresenceTimeout time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret, allowedOrigins, relayAppId, relayKey string, presenceTimeout time.Duration) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if relayAppId == "" || relayKey == "" {
		return nil, fmt.Errorf("relay app id and key cannot be empty")
	}
	if presenceTimeout <= 0 {
		presenceTimeout = DefaultPresenceTimeout
	}

	// Decode the base64 encoded signing secret
	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		DatabaseDSN:     databaseDSN,
		ServerAddr:      serverAddr,
		SigningKey:      signingKey,
		AllowedOrigins:  origins,
		RelayAppId:      relayAppId,
		RelayKey:        relayKey,
		PresenceTimeout: presenceTimeout,
	}, nil
}
