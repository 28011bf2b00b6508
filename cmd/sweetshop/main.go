package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/akbansal/sweetshop/internal/access"
	"github.com/akbansal/sweetshop/internal/cart"
	"github.com/akbansal/sweetshop/internal/catalog"
	"github.com/akbansal/sweetshop/internal/domain"
	"github.com/akbansal/sweetshop/internal/messaging"
	"github.com/akbansal/sweetshop/internal/orders"
	"github.com/akbansal/sweetshop/internal/telemetry"
	"github.com/akbansal/sweetshop/internal/users"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "sweetshop", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("sweetshop", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime instrumentation", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var placedProducer, cancelledProducer *messaging.Producer
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		placedProducer = messaging.NewProducer(brokers, domain.TopicOrderPlaced)
		defer func() { _ = placedProducer.Close() }()
		cancelledProducer = messaging.NewProducer(brokers, domain.TopicOrderCancelled)
		defer func() { _ = cancelledProducer.Close() }()
	}

	orderMetrics, err := telemetry.NewOrderMetrics()
	if err != nil {
		logger.Error("failed to create order metrics", "error", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(db)
	cartRepo := cart.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	userRepo := users.NewRepository(db)

	orderService := orders.NewService(orderRepo, cartRepo, catalogRepo, userRepo, logger).
		WithMetrics(orderMetrics)
	if placedProducer != nil {
		orderService.WithPublishers(placedProducer, cancelledProducer)
	}

	catalogHandler := catalog.NewHandler(catalogRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, catalogRepo, logger)
	orderHandler := orders.NewHandler(orderService, logger)

	mw := access.NewMiddleware(logger)
	route := telemetry.WithHTTPRoute
	auth := func(h http.HandlerFunc) http.HandlerFunc { return route(mw.Authenticate(h)) }
	admin := func(h http.HandlerFunc) http.HandlerFunc { return auth(mw.RequireAdmin(h)) }

	mux := http.NewServeMux()

	mux.HandleFunc("GET /products", route(catalogHandler.HandleList))
	mux.HandleFunc("GET /products/search", route(catalogHandler.HandleSearch))
	mux.HandleFunc("POST /products", admin(catalogHandler.HandleCreate))
	mux.HandleFunc("PUT /products/{id}", admin(catalogHandler.HandleUpdate))
	mux.HandleFunc("DELETE /products/{id}", admin(catalogHandler.HandleDelete))
	mux.HandleFunc("POST /products/{id}/restock", admin(catalogHandler.HandleRestock))
	mux.HandleFunc("POST /products/{id}/purchase", auth(catalogHandler.HandlePurchase))

	mux.HandleFunc("GET /cart", auth(cartHandler.HandleGet))
	mux.HandleFunc("POST /cart/items", auth(cartHandler.HandleAddItem))
	mux.HandleFunc("PUT /cart/items/{itemId}", auth(cartHandler.HandleUpdateItem))
	mux.HandleFunc("DELETE /cart/items/{itemId}", auth(cartHandler.HandleRemoveItem))
	mux.HandleFunc("DELETE /cart", auth(cartHandler.HandleClear))

	mux.HandleFunc("POST /orders", auth(orderHandler.HandlePlace))
	mux.HandleFunc("GET /orders", auth(orderHandler.HandleListMine))
	mux.HandleFunc("GET /orders/all", admin(orderHandler.HandleListAll))
	mux.HandleFunc("GET /orders/{id}", auth(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", admin(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /orders/{id}/cancel", auth(orderHandler.HandleCancel))

	mux.Handle("GET /metrics", metricsHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "sweetshop",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting sweetshop service", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
