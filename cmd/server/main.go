package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/waddu20-ops/SmartDo/internal/assistant"
	"github.com/waddu20-ops/SmartDo/internal/config"
	"github.com/waddu20-ops/SmartDo/internal/gen"
	"github.com/waddu20-ops/SmartDo/internal/httpserver"
	"github.com/waddu20-ops/SmartDo/internal/live"
	"github.com/waddu20-ops/SmartDo/internal/notify"
	"github.com/waddu20-ops/SmartDo/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Logger = logger

	cfg := config.Load()

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("open task store")
	}
	defer st.Close()

	generator := gen.NewClient(cfg.GeminiAPIKey, cfg.TextModel)
	hub := httpserver.NewHub(logger.With().Str("component", "hub").Logger())

	notifier := notify.New(st, hub, logger.With().Str("component", "notify").Logger())
	notifier.Start()
	defer notifier.Stop()

	e := httpserver.New(httpserver.Deps{
		Store: st,
		Gen:   generator,
		Hub:   hub,
		NewChannel: func() assistant.Channel {
			return live.NewClient(live.Config{
				APIKey:            cfg.GeminiAPIKey,
				Model:             cfg.LiveModel,
				Voice:             cfg.VoiceName,
				SystemInstruction: assistant.SystemInstruction,
				Tools:             []live.FunctionDeclaration{assistant.TaskToolDeclaration()},
			}, logger.With().Str("component", "live").Logger())
		},
		Logger: logger,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddress).Msg("server listening")
		serverErrors <- e.Start(cfg.HTTPAddress)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		_ = e.Close()
	}
}
