package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/Gerondiz/backend-mediasoup/internal/adapters/http"
	"github.com/Gerondiz/backend-mediasoup/internal/adapters/rtc"
	sig "github.com/Gerondiz/backend-mediasoup/internal/adapters/signal"
	"github.com/Gerondiz/backend-mediasoup/internal/app"
	"github.com/Gerondiz/backend-mediasoup/internal/app/orch"
	"github.com/Gerondiz/backend-mediasoup/internal/config"
)

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode == "debug" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func iceServers(cfg []config.ICEServer) []webrtc.ICEServer {
	if len(cfg) == 0 {
		return nil
	}
	out := make([]webrtc.ICEServer, 0, len(cfg))
	for _, s := range cfg {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the configured format is known.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	engine, err := rtc.NewEngine(rtc.Options{
		MinPort:     cfg.RTC.MinPort,
		MaxPort:     cfg.RTC.MaxPort,
		AnnouncedIP: cfg.RTC.AnnouncedIP,
		ICEServers:  iceServers(cfg.ICEServers),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}

	rooms := app.NewRoomRegistry(app.RegistryOptions{
		MaxRooms:     cfg.MaxRooms,
		MaxUsers:     cfg.MaxUsers,
		HistorySize:  cfg.ChatHistorySize,
		ReapInterval: cfg.ReapInterval,
	})
	o := &orch.Orchestrator{
		Rooms:       rooms,
		Engine:      engine,
		Policy:      app.PolicyByName(cfg.BackpressurePolicy),
		ChatLimiter: app.NewRateLimiter(cfg.ChatRateLimit, cfg.ChatRateInterval),
	}
	ctl := sig.NewSignalWSController(o, sig.Options{
		ReadLimit:      cfg.ReadLimit,
		WriteWait:      cfg.WriteWait,
		PingPeriod:     cfg.PingPeriod,
		PongTimeout:    cfg.PongTimeout,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.SetupRouter(ctx, cfg, rooms, engine, ctl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("SFU signaling server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return rooms.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err := srv.Shutdown(shutdownCtx)
		rooms.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}
