package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxera/roomserver/internal/database"
	"github.com/voxera/roomserver/internal/types"
)

func TestAuthMiddleware(t *testing.T) {
	t.Run("rejects request without cookie", func(t *testing.T) {
		app := newTestApp(t, &database.MockRoomRepository{})

		called := false
		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		rr := httptest.NewRecorder()
		handler(rr, httptest.NewRequest(http.MethodGet, "/api/account", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.False(t, called, "expected handler not to run")
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		app := newTestApp(t, &database.MockRoomRepository{})

		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run")
		})

		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: "garbage"})

		rr := httptest.NewRecorder()
		handler(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("passes user id to handler", func(t *testing.T) {
		app := newTestApp(t, &database.MockRoomRepository{})

		token, err := app.createJwtForSession(types.User{Id: 42}, time.Hour)
		require.NoError(t, err)

		var gotUserId int
		handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			gotUserId, _ = UserId(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
		req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})

		rr := httptest.NewRecorder()
		handler(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 42, gotUserId, "expected user id from token in context")
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store", "expected cache headers on authenticated responses")
	})
}

func TestErrorHandler(t *testing.T) {
	app := newTestApp(t, &database.MockRoomRepository{})

	handler := app.errorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected panic to become a 500")
	assert.Equal(t, "close", rr.Header().Get("Connection"))
}
