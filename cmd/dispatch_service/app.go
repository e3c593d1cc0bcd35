package dispatchservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"service-hub/internal/general/config"
	"service-hub/internal/general/jwt"
	"service-hub/internal/general/logger"
	"service-hub/internal/general/postgres"
	"service-hub/internal/general/rabbitmq"
	"service-hub/internal/hub/handler"
	"service-hub/internal/hub/service"
	"service-hub/internal/hub/websocket"
	"service-hub/internal/ports"
)

// actorDirectory resolves booking participants straight from storage. The
// gateway needs it for routing relayed frames without depending on the
// dispatch service.
type actorDirectory struct {
	uow      ports.UnitOfWork
	bookings ports.BookingRepository
}

func (d *actorDirectory) ActorsFor(ctx context.Context, bookingID string) (string, string, error) {
	var customerID, workerID string
	err := d.uow.WithinTx(ctx, func(txCtx context.Context) error {
		b, err := d.bookings.GetByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		customerID = b.CustomerID
		if b.AssignedWorkerID != nil {
			workerID = *b.AssignedWorkerID
		}
		return nil
	})
	return customerID, workerID, err
}

// Run wires the dispatch hub and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// Postgres connection pool
	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	// RabbitMQ carries the cross-instance relay; a single-instance hub still
	// works when the broker is down, so a failed connect only degrades
	rmq, err := rabbitmq.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed",
			"Failed to connect to RabbitMQ; cross-instance relay disabled", err, nil)
		rmq = nil
	}

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	// repositories
	uow := postgres.NewUnitOfWork(pool)
	bookingRepo := postgres.NewBookingRepo()
	workerRepo := postgres.NewWorkerRepo()

	// WebSocket gateway routes frames by booking participants
	directory := &actorDirectory{uow: uow, bookings: bookingRepo}
	var relay websocket.RelayPublisher
	if rmq != nil {
		relay = rmq // a typed-nil client must not reach the interface
	}
	gateway := websocket.NewGateway(logger, jwtManager, directory, relay)

	// dispatch service
	svc := service.NewDispatchService(logger, uow, bookingRepo, workerRepo, gateway, rmq)

	// background consumers for events relayed from other hub instances
	svc.RunRelayConsumers(ctx)

	// HTTP handler and routes
	mux := http.NewServeMux()
	httpHandler := handler.NewHubHTTPHandler(svc, logger, jwtManager, gateway)
	httpHandler.RegisterRoutes(mux)

	// concurrency limiter (global); blocks when capacity is full
	limitedHandler := withConcurrencyLimit(maxConcurrent, mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Dispatch.Port),
		Handler:           limitedHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.Dispatch.Port),
		map[string]any{"port": cfg.Dispatch.Port, "max_concurrent": maxConcurrent},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Graceful shutdown started", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err,
				map[string]any{"port": cfg.Dispatch.Port})
			return err
		}
		return nil
	}

	if rmq != nil {
		rmq.Close()
	}
	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
