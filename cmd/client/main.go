package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/huddle/internal/adapters/bus"
	"github.com/dkeye/huddle/internal/adapters/ctl"
	"github.com/dkeye/huddle/internal/adapters/rtc"
	"github.com/dkeye/huddle/internal/call"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	settings, err := config.OpenSettings(cfg.SettingsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load device settings")
	}

	self, err := domain.NewUser(cfg.Username)
	if err != nil {
		log.Fatal().Err(err).Msg("bad username")
	}
	self.Avatar = cfg.Avatar

	busClient := bus.NewClient(cfg.SignalURL)
	source := media.NewSource(media.PipeDriver{Path: cfg.CapturePath})
	factory := rtc.Factory(rtc.Config(cfg.StunServers))

	engine := call.NewEngine(call.Config{
		Self:              self,
		JoinTimeout:       cfg.JoinTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Settings:          settings.Get,
	}, busClient, source, factory)

	detector := media.NewDetector(source.Level, settings.Get().SpeakingThreshold, engine.OnVoiceActivity)

	go busClient.Run(ctx)
	go engine.Run(ctx)
	go detector.Run(ctx)
	go drainEvents(ctx, engine)

	controller := &ctl.Controller{
		Engine:   engine,
		Settings: settings,
		OnSettings: func(set domain.DeviceSettings) {
			detector.SetThreshold(set.SpeakingThreshold)
			applyCtx, applyCancel := context.WithTimeout(ctx, 5*time.Second)
			defer applyCancel()
			if err := engine.UpdateDeviceSettings(applyCtx, set); err != nil {
				log.Error().Err(err).Msg("device switch failed")
			}
		},
	}
	r := ctl.SetupRouter(cfg.Mode, controller)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("bus", cfg.SignalURL).Msg("huddle client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control server forced to shutdown")
	}
	busClient.Close()
	log.Info().Msg("Client exited gracefully")
}

// drainEvents keeps the engine channel flowing; a real UI would render these.
func drainEvents(ctx context.Context, engine *call.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-engine.Events():
			switch ev.Kind {
			case call.EventStatus:
				log.Info().Str("status", ev.Status).Msg("call status")
			case call.EventFailure:
				log.Warn().Err(ev.Err).Msg("call failure")
			case call.EventIncoming:
				log.Info().Str("call_id", ev.Incoming.Call.CallID).Str("from", ev.Incoming.Initiator.Username).Msg("incoming call")
			case call.EventRemoteTrack:
				log.Info().Str("user", string(ev.UserID)).Msg("remote audio available")
			}
		}
	}
}
