package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr    = "localhost:8080"
		dsn     = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key     = "c29tZV9zZWNyZXQ="
		orig    = "http://localhost:3000"
		appId   = "voxera-app"
		relay   = "relay-secret"
		timeout = 45 * time.Second
	)

	tcases := []struct {
		name    string
		addr    string
		dsn     string
		key     string
		orig    string
		appId   string
		relay   string
		timeout time.Duration
		err     bool
	}{
		{
			name:    "valid config",
			addr:    addr,
			dsn:     dsn,
			key:     key,
			orig:    orig,
			appId:   appId,
			relay:   relay,
			timeout: timeout,
			err:     false,
		},
		{
			name:    "empty address",
			dsn:     dsn,
			key:     key,
			orig:    orig,
			appId:   appId,
			relay:   relay,
			timeout: timeout,
			err:     true,
		},
		{
			name:    "empty DSN",
			addr:    addr,
			key:     key,
			orig:    orig,
			appId:   appId,
			relay:   relay,
			timeout: timeout,
			err:     true,
		},
		{
			name:    "empty signing key",
			addr:    addr,
			dsn:     dsn,
			orig:    orig,
			appId:   appId,
			relay:   relay,
			timeout: timeout,
			err:     true,
		},
		{
			name:    "invalid base64 signing key",
			addr:    addr,
			dsn:     dsn,
			key:     "not_base64!",
			orig:    orig,
			appId:   appId,
			relay:   relay,
			timeout: timeout,
			err:     true,
		},
		{
			name:    "missing relay credentials",
			addr:    addr,
			dsn:     dsn,
			key:     key,
			orig:    orig,
			timeout: timeout,
			err:     true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.orig, tc.appId, tc.relay, tc.timeout)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, []string{orig}, config.AllowedOrigins, "expected allowed origins to match")
			assert.NotEmpty(t, config.SigningKey, "expected signing key to be decoded and not empty")
			assert.Equal(t, tc.timeout, config.PresenceTimeout, "expected presence timeout to match")
		})
	}

	t.Run("defaults presence timeout when unset", func(t *testing.T) {
		config, err := NewConfig(addr, dsn, key, orig, appId, relay, 0)
		assert.NoError(t, err)
		assert.Equal(t, DefaultPresenceTimeout, config.PresenceTimeout)
	})

	t.Run("splits and trims origins", func(t *testing.T) {
		config, err := NewConfig(addr, dsn, key, "http://a.example, http://b.example ,", appId, relay, timeout)
		assert.NoError(t, err)
		assert.Equal(t, []string{"http://a.example", "http://b.example"}, config.AllowedOrigins)
	})
}

func Test_decodeSigningSecret(t *testing.T) {
	tcases := []struct {
		name         string
		base64Secret string
		expectedKey  []byte
		expectError  bool
	}{
		{
			name:         "valid base64 secret",
			base64Secret: "c29tZV9zZWNyZXQ=",
			expectedKey:  []byte("some_secret"),
			expectError:  false,
		},
		{
			name:         "invalid base64 secret",
			base64Secret: "invalid_base64",
			expectedKey:  nil,
			expectError:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeSigningSecret(tc.base64Secret)
			if tc.expectError {
				assert.Error(t, err, "expected error for base64 secret: %s", tc.base64Secret)
			} else {
				assert.NoError(t, err, "expected no error for base64 secret: %s", tc.base64Secret)
				assert.Equal(t, tc.expectedKey, key, "expected decoded key to match")
			}
		})
	}
}
