package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/kroma-labs/apiclient-go/example/orders/internal/client"
	"github.com/kroma-labs/apiclient-go/example/orders/internal/config"
	"github.com/kroma-labs/apiclient-go/example/orders/internal/database"
	"github.com/kroma-labs/apiclient-go/example/orders/internal/telemetry"
	"github.com/kroma-labs/apiclient-go/httpclient"
)

func main() {
	ctx := context.Background()
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "orders-client").Logger()

	shutdownTracing, shutdownMetrics, err := telemetry.Setup(ctx, "orders-client")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to setup telemetry")
	}
	defer func() {
		_ = shutdownTracing(ctx)
		_ = shutdownMetrics(ctx)
	}()

	orders := client.New(config.BaseURL,
		httpclient.WithLogger(logger),
		httpclient.WithBreaker(httpclient.DefaultBreakerConfig()),
		httpclient.WithRateLimit(httpclient.DefaultRateLimitConfig()),
	)
	tracer := otel.Tracer("orders-client")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(config.OperationInterval) * time.Second)
	defer ticker.Stop()

	var next int64 = 1
	for {
		select {
		case <-ticker.C:
			ctx, span := tracer.Start(ctx, "order-operations")
			run(ctx, logger, orders, next)
			span.End()
			next++

		case <-sigChan:
			logger.Info().Msg("shutting down")
			return
		}
	}
}

func run(ctx context.Context, logger zerolog.Logger, orders *client.Orders, id int64) {
	created, err := orders.Create(ctx, database.Order{ID: id, Customer: "alice", Total: id * 100})
	switch {
	case httpclient.IsDuplicate(err):
		logger.Info().Int64("id", id).Msg("order already exists")
	case err != nil:
		logger.Error().Err(err).Str("error_type", string(httpclient.ErrorTypeOf(err))).Msg("create failed")
		return
	default:
		logger.Info().Int64("id", created.ID).Msg("order created")
	}

	o, etag, err := orders.Get(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("get failed")
		return
	}
	if o == nil {
		logger.Warn().Int64("id", id).Msg("order vanished")
		return
	}

	updated, _, err := orders.SetTotal(ctx, id, etag, o.Total+1)
	if httpclient.IsConcurrency(err) {
		logger.Warn().Int64("id", id).Msg("order changed concurrently")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("patch failed")
		return
	}
	logger.Info().Int64("id", id).Int64("total", updated.Total).Msg("order updated")

	page, err := orders.List(ctx, 1, 10)
	if err != nil {
		logger.Error().Err(err).Msg("list failed")
		return
	}
	event := logger.Info().Int("items", len(page.Items))
	if page.Paging != nil && page.Paging.TotalCount != nil {
		event.Int64("total", *page.Paging.TotalCount)
	}
	event.Msg("orders listed")
}
