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

	"github.com/go-playground/validator/v10"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hanbokmall/checkout/internal/address"
	"github.com/hanbokmall/checkout/internal/auth"
	"github.com/hanbokmall/checkout/internal/cart"
	"github.com/hanbokmall/checkout/internal/catalog"
	"github.com/hanbokmall/checkout/internal/checkout"
	"github.com/hanbokmall/checkout/internal/events"
	"github.com/hanbokmall/checkout/internal/orders"
	"github.com/hanbokmall/checkout/internal/payment"
	"github.com/hanbokmall/checkout/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	tel, err := telemetry.Init(ctx, "checkout", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tel.Shutdown(ctx) }()

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

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err, "addr", redisAddr)
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	gateway, paymentMethod := buildGateway(logger)

	var publisher *events.Publisher
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		publisher = events.NewPublisher(strings.Split(kafkaBrokers, ","), events.OrderPlacedTopic)
		defer func() { _ = publisher.Close() }()
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	catalogRepo := catalog.NewRepository(db)
	addressRepo := address.NewRepository(db)
	cartRepo := cart.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	snapshots := cart.NewRedisSnapshotStore(redisClient)

	cartService := cart.NewService(cartRepo, snapshots, catalogRepo, logger)
	cartHandler := cart.NewHandler(cartService, validate, logger)

	// events.Publisher is nil when Kafka is disabled; hand the orchestrator a
	// nil interface, not a typed nil.
	var orchestratorPublisher checkout.Publisher
	if publisher != nil {
		orchestratorPublisher = publisher
	}

	orchestrator, err := checkout.NewOrchestrator(cartService, addressRepo, gateway, orderRepo,
		orchestratorPublisher, paymentMethod, logger)
	if err != nil {
		logger.Error("failed to initialize checkout orchestrator", "error", err)
		os.Exit(1)
	}
	checkoutHandler := checkout.NewHandler(orchestrator, validate, logger)
	orderHandler := orders.NewHandler(orderRepo, logger)

	authn := auth.NewMiddleware(jwtSecret)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /cart", route(authn.WithIdentity, cartHandler.HandleGet))
	mux.HandleFunc("POST /cart/items", route(authn.WithIdentity, cartHandler.HandleAdd))
	mux.HandleFunc("DELETE /cart/items/{slug}", route(authn.WithIdentity, cartHandler.HandleRemove))
	mux.HandleFunc("PATCH /cart/items/{id}", route(authn.WithIdentity, cartHandler.HandleUpdateQuantity))
	mux.HandleFunc("POST /cart/merge", route(authn.RequireUser, cartHandler.HandleMerge))

	mux.HandleFunc("GET /addresses", route(authn.RequireUser, checkoutHandler.HandleAddresses))
	mux.HandleFunc("GET /checkout/summary", route(authn.RequireUser, checkoutHandler.HandleSummary))
	mux.HandleFunc("POST /checkout/intent", route(authn.RequireUser, checkoutHandler.HandleCreateIntent))
	mux.HandleFunc("POST /checkout/complete", route(authn.RequireUser, checkoutHandler.HandleComplete))

	mux.HandleFunc("GET /orders", route(authn.RequireUser, orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{orderNumber}", route(authn.RequireUser, orderHandler.HandleGet))
	mux.HandleFunc("POST /orders/{orderNumber}/cancel", route(authn.RequireUser, orderHandler.HandleCancel))
	mux.HandleFunc("PATCH /orders/{orderNumber}/status", route(authn.RequireAdmin, orderHandler.HandleUpdateStatus))

	mux.Handle("GET /metrics", tel.MetricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "checkout",
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
		logger.Info("starting checkout service", "port", port, "payment_gateway", paymentMethod)
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

// route composes an auth wrapper with the span route attribute helper.
func route(wrap func(http.HandlerFunc) http.HandlerFunc, h http.HandlerFunc) http.HandlerFunc {
	return telemetry.WithHTTPRoute(wrap(h))
}

func buildGateway(logger *slog.Logger) (payment.Gateway, string) {
	switch name := os.Getenv("PAYMENT_GATEWAY"); name {
	case "", "stripe":
		key := os.Getenv("STRIPE_SECRET_KEY")
		if key == "" {
			logger.Error("STRIPE_SECRET_KEY environment variable is required")
			os.Exit(1)
		}
		return payment.NewStripeGateway(key), "STRIPE"
	case "stub":
		logger.Warn("using stub payment gateway, every intent auto-succeeds")
		return payment.NewStubGateway().AutoSucceed(), "STUB"
	default:
		logger.Error("unknown payment gateway", "gateway", name)
		os.Exit(1)
		return nil, ""
	}
}
