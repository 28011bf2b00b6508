package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/akbansal/sweetshop/internal/domain"
	"github.com/akbansal/sweetshop/internal/messaging"
	"github.com/akbansal/sweetshop/internal/notifier"
	"github.com/akbansal/sweetshop/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "sweetshop-notifier", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	kafkaBrokers := os.Getenv("KAFKA_BROKERS")
	if kafkaBrokers == "" {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	emailServiceURL := os.Getenv("EMAIL_SERVICE_URL")
	if emailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	brokers := strings.Split(kafkaBrokers, ",")

	placedConsumer := messaging.NewConsumer(brokers, domain.TopicOrderPlaced, "sweetshop-notifier")
	defer func() { _ = placedConsumer.Close() }()

	cancelledConsumer := messaging.NewConsumer(brokers, domain.TopicOrderCancelled, "sweetshop-notifier")
	defer func() { _ = cancelledConsumer.Close() }()

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	handler := notifier.NewHandler(emailServiceURL, httpClient, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	healthServer := &http.Server{
		Addr:         ":" + port,
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = healthServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting notifier", "brokers", brokers)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return placedConsumer.Consume(gctx, handler.HandleOrderPlaced)
	})
	g.Go(func() error {
		return cancelledConsumer.Consume(gctx, handler.HandleOrderCancelled)
	})
	g.Go(func() error {
		err := healthServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("notifier error", "error", err)
		os.Exit(1)
	}

	logger.Info("notifier stopped")
}
