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

	"github.com/kroma-labs/apiclient-go/example/orders/internal/api"
	"github.com/kroma-labs/apiclient-go/example/orders/internal/config"
	"github.com/kroma-labs/apiclient-go/example/orders/internal/database"
	"github.com/kroma-labs/apiclient-go/example/orders/internal/telemetry"
	"github.com/kroma-labs/apiclient-go/httpserver"
	chiadapter "github.com/kroma-labs/apiclient-go/httpserver/adapters/chi"
)

func main() {
	ctx := context.Background()
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", config.ServiceName).Logger()

	shutdownTracing, shutdownMetrics, err := telemetry.Setup(ctx, config.ServiceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to setup telemetry")
	}
	defer func() {
		_ = shutdownTracing(ctx)
		_ = shutdownMetrics(ctx)
	}()

	metricsServer := &http.Server{Addr: config.MetricsPort, Handler: httpserver.PrometheusHandler()}
	go func() {
		logger.Info().Str("addr", config.MetricsPort).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	db, err := database.New(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	metrics, err := chiadapter.NewMetrics(httpserver.MetricsConfig{ServiceName: config.ServiceName})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create metrics")
	}

	router := api.Router(api.New(db), httpserver.LoggerConfig{
		Logger:      logger,
		ServiceName: config.ServiceName,
	}, metrics)

	srv := &http.Server{
		Addr: config.APIAddr,
		Handler: httpserver.Chain(
			httpserver.RateLimitByIP(config.RateLimit, config.RateBurst),
			httpserver.Timeout(10*time.Second),
		)(router),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", config.APIAddr).Msg("starting orders API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("orders API failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("orders API shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown")
	}
}
