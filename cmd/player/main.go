package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Nixie-Tech-LLC/medusa-player/internal/backend"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/clock"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/config"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/events"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/http/api/status"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/mediacache"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/player"
	"github.com/Nixie-Tech-LLC/medusa-player/internal/state"
)

func main() {
	// load configuration
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogging(cfg)

	// local persisted state (device identity, tokens, last known good)
	store, err := state.Open(cfg.StateDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state store")
	}
	defer store.Close()

	deviceID := mustDeviceID(store)
	log.Info().Str("device_id", deviceID).Msg("starting player")

	cache, err := mediacache.NewStore(cfg.CacheDir, cfg.CacheBudgetBytes, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize media cache")
	}

	client := backend.NewClient(cfg.CMSBaseURL, deviceID)
	serverClock := clock.New(client)

	// event channel is best-effort: the player runs without a broker,
	// falling back to timers and the safety poll.
	var channel *events.Channel
	if cfg.MQTTBrokerURL != "" {
		channel, err = events.Connect(cfg.MQTTBrokerURL, "player-"+deviceID)
		if err != nil {
			log.Warn().Err(err).Msg("event broker unavailable, continuing without push updates")
			channel = nil
		} else {
			defer channel.Close()
		}
	}

	session := player.NewSession(player.Deps{
		DeviceID:       deviceID,
		Clock:          serverClock,
		ResyncInterval: cfg.ResyncInterval,
		Client:         client,
		Cache:          cache,
		Store:          store,
		Channel:        channel,
		PrefetchLead:   cfg.PrefetchLead,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := session.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start player session")
	}

	// set up gin router for the local status API
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.Default())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api.MountGroup(r, api.GroupConfig{Prefix: "/api"}, status.StatusModule(session))

	srv := &http.Server{Addr: cfg.StatusAddress, Handler: r}
	go func() {
		log.Info().Str("address", cfg.StatusAddress).Msg("status API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("status server error")
		}
	}()

	// SIGHUP forces a clock probe and schedule refresh, for wrappers
	// that know the display just came back on.
	resync := make(chan os.Signal, 1)
	signal.Notify(resync, syscall.SIGHUP)
	go func() {
		for range resync {
			log.Info().Msg("resync requested")
			session.Resync(ctx)
		}
	}()

	// run until interrupted
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("status server shutdown failed")
	}
	session.Close()
}

// setupLogging routes zerolog to a rotating file on the kiosk, with a
// console writer in development.
func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.LogFile != "" {
		log.Logger = log.Output(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
		})
	}
}

// mustDeviceID loads the persisted device identity, minting one on
// first boot.
func mustDeviceID(store state.Store) string {
	id, err := store.LoadDeviceID()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load device id")
	}
	if id != "" {
		return id
	}
	id = uuid.NewString()
	if err := store.SaveDeviceID(id); err != nil {
		log.Fatal().Err(err).Msg("failed to persist device id")
	}
	log.Info().Str("device_id", id).Msg("minted new device identity")
	return id
}
