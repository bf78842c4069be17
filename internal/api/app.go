package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/voxera/roomserver/internal/config"
	"github.com/voxera/roomserver/internal/database"
	"github.com/voxera/roomserver/internal/server"
)

type VoxeraApp struct {
	log            *log.Logger
	db             database.RoomRepository
	mux            *http.Server
	coordinator    *server.Coordinator
	tracker        *server.PresenceTracker
	signingKey     []byte
	allowedOrigins []string
}

func NewVoxeraApp(mux *http.ServeMux, logger *log.Logger, coordinator *server.Coordinator, tracker *server.PresenceTracker, db database.RoomRepository, cfg *config.Config) *VoxeraApp {
	s := &VoxeraApp{
		log:            logger,
		db:             db,
		coordinator:    coordinator,
		tracker:        tracker,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/rooms/{id}", s.authMiddleware(s.getRoom))
	mux.Handle("POST /api/rooms/{id}/join", s.authMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/{id}/leave", s.authMiddleware(s.leaveRoom))
	mux.Handle("GET /api/rooms/{id}/token", s.authMiddleware(s.relayToken))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/gifts", s.authMiddleware(s.listGifts))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *VoxeraApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *VoxeraApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
