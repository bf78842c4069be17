package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/voxera/roomserver/internal/api"
	"github.com/voxera/roomserver/internal/config"
	"github.com/voxera/roomserver/internal/database"
	"github.com/voxera/roomserver/internal/media"
	"github.com/voxera/roomserver/internal/server"
	"github.com/voxera/roomserver/internal/stats"
)

var (
	addr            string
	dsn             string
	signingKey      string
	allowedOrigins  string
	relayAppId      string
	relayKey        string
	presenceTimeout time.Duration
	migrate         bool
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("VOXERA_SIGNING_KEY"), "base64 encoded session signing key")
	flag.StringVar(&allowedOrigins, "allowed-origins", "", "comma-separated list of allowed origins for CORS")
	flag.StringVar(&relayAppId, "relay-app-id", os.Getenv("VOXERA_RELAY_APP_ID"), "media relay application id")
	flag.StringVar(&relayKey, "relay-key", os.Getenv("VOXERA_RELAY_KEY"), "media relay signing key")
	flag.DurationVar(&presenceTimeout, "presence-timeout", config.DefaultPresenceTimeout, "heartbeat window before a connection is considered dead")
	flag.BoolVar(&migrate, "migrate", true, "run database migrations on startup")
	flag.Parse()

	logger := log.New(os.Stderr, "[roomserver] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, relayAppId, relayKey, presenceTimeout)
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgRoomRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if migrate {
		if err := dbConn.Migrate(); err != nil {
			logger.Fatal("migrate:", err)
		}
	}

	issuer, err := media.NewRelayTokenIssuer(cfg.RelayAppId, []byte(cfg.RelayKey))
	if err != nil {
		logger.Fatal("relay token issuer:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	broadcaster := server.NewBroadcaster(logger)

	coordinator, err := server.NewCoordinator(logger, dbConn, broadcaster, issuer, statsUpdater)
	if err != nil {
		logger.Fatal("new coordinator:", err)
	}

	// recover rooms orphaned by a crash mid-succession
	if err := coordinator.RepairHostlessRooms(context.Background()); err != nil {
		logger.Println("repair hostless rooms:", err)
	}

	tracker := server.NewPresenceTracker(logger, coordinator, broadcaster, cfg.PresenceTimeout)

	srv := api.NewVoxeraApp(mux, logger, coordinator, tracker, dbConn, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go tracker.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down session coordinator...")
	tracker.Shutdown()
	broadcaster.Shutdown()

	logger.Println("shutdown complete")
}
