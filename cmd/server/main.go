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

	"github.com/dkeye/vcall/internal/adapters/directory"
	"github.com/dkeye/vcall/internal/adapters/httpapi"
	"github.com/dkeye/vcall/internal/adapters/rtc"
	sig "github.com/dkeye/vcall/internal/adapters/signal"
	"github.com/dkeye/vcall/internal/app"
	"github.com/dkeye/vcall/internal/config"
	"github.com/dkeye/vcall/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	rtcCfg := rtc.DefaultConfig()
	rtcCfg.MinPort = uint16(cfg.RTCMinPort)
	rtcCfg.MaxPort = uint16(cfg.RTCMaxPort)
	rtcCfg.MaxIncomingBitrate = cfg.MaxIncomingBitrate

	// A dead worker takes the process down; rooms are not migratable.
	pool, err := app.NewWorkerPool(ctx, cfg.NumWorkers,
		func(ctx context.Context, index int) (core.Worker, error) {
			return rtc.NewWorker(rtcCfg, index)
		},
		func(w core.Worker) {
			log.Fatal().Str("worker", w.ID()).Msg("media worker died")
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("worker pool boot failed")
	}
	defer pool.Close()

	registry := app.NewRegistry(pool, config.MediaCodecs())
	limiter := sig.NewRoomRateLimiter(cfg.RateLimit, cfg.RateWindow)
	ctrl := sig.NewController(registry, directory.Open{}, limiter, cfg.PingPeriod)

	r := httpapi.SetupRouter(ctx, cfg, registry, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("vcall server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
