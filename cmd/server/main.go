package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/obiente/translate/whisperstream/internal/config"
	serverhttp "github.com/obiente/translate/whisperstream/internal/http"
	"github.com/obiente/translate/whisperstream/internal/observe"
	"github.com/obiente/translate/whisperstream/internal/whisper"
	"github.com/obiente/translate/whisperstream/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
	log.Logger = log.Level(lvl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: cfg.ServiceName})
	if err != nil {
		log.Warn().Err(err).Msg("telemetry disabled")
		shutdownOTel = func(context.Context) error { return nil }
	}
	// Instruments bind to the provider registered above.
	metrics := observe.DefaultMetrics()

	// Weights are read once and shared by every connection's context.
	weights, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.ModelPath).Msg("model weights unavailable, sessions will fail to start")
	} else {
		log.Info().Str("path", cfg.ModelPath).Int("bytes", len(weights)).Msg("model weights read")
	}

	wss := ws.NewServer(cfg, whisper.NewBackend(), weights, metrics)
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      serverhttp.NewRouter(wss.Handle),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("whisperstream server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return errors.Join(srv.Shutdown(sctx), shutdownOTel(sctx))
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
