package customerclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/user"
	"service-hub/internal/general/config"
	"service-hub/internal/general/contracts"
	"service-hub/internal/general/logger"
	"service-hub/internal/session"
	"service-hub/internal/session/channel"
	"service-hub/internal/session/rest"
)

// Options configures one customer session run.
type Options struct {
	ConfigPath string
	CustomerID string
	Token      string

	// When Category is set, one booking is created on startup.
	Category    string
	ServiceName string
	Address     string
	Lat         float64
	Lng         float64
	Price       float64
}

// Run attaches a customer session to the hub and blocks until ctx is
// cancelled. With a category flag it requests one booking and then tracks it.
func Run(ctx context.Context, opts Options) error {
	logger := logger.New("customer-client")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	api := rest.New(cfg.Dispatch.URL, opts.Token)

	wsURL := toWSURL(cfg.Dispatch.URL) + "/ws/customer/" + opts.CustomerID
	ch := channel.New(logger, wsURL, opts.CustomerID, user.RoleCustomer, opts.Token, channel.Options{
		BackoffMin: time.Duration(cfg.Channel.ReconnectMinMS) * time.Millisecond,
		BackoffMax: time.Duration(cfg.Channel.ReconnectMaxMS) * time.Millisecond,
	})

	sess := session.NewCustomerSession(logger, session.CustomerConfig{
		CustomerID: opts.CustomerID,
		API:        api,
		Channel:    ch,
		Events: session.CustomerEvents{
			OnAccepted: func(bookingID, workerID string, w *contracts.WorkerBrief) {
				fmt.Printf("[accepted] %s by worker %s\n", bookingID, workerID)
			},
			OnUpdated: func(b *booking.Booking) {
				fmt.Printf("[update] %s -> %s\n", b.ID, b.Status)
			},
			OnWorkerLocation: func(bookingID string, pt booking.GeoPoint, at time.Time) {
				fmt.Printf("[worker] %s at %.5f,%.5f\n", bookingID, pt.Lat, pt.Lng)
			},
			OnWorkerArrived: func(bookingID string) {
				fmt.Printf("[arrived] worker on site for %s\n", bookingID)
			},
			OnWorkStarted: func(bookingID string) {
				fmt.Printf("[working] %s\n", bookingID)
			},
			OnWorkCompleted: func(bookingID string) {
				fmt.Printf("[done] %s\n", bookingID)
			},
		},
	})
	defer sess.Close()

	if err := ch.Connect(ctx); err != nil {
		logger.Error(ctx, "channel_connect_failed", "Failed to connect event channel", err, nil)
		return err
	}
	defer ch.Close()

	sess.Refresh(ctx)

	var tracked string
	if opts.Category != "" {
		rec := contracts.BookingRecord{
			Category:    opts.Category,
			ServiceName: opts.ServiceName,
			Address:     opts.Address,
			Price:       opts.Price,
		}
		if opts.Lat != 0 || opts.Lng != 0 {
			rec.Coordinate = &contracts.GeoPoint{Lat: opts.Lat, Lng: opts.Lng, Address: opts.Address}
		}
		created, err := sess.Request(ctx, rec)
		if err != nil {
			return err
		}
		tracked = created.ID
		fmt.Printf("[requested] %s (%s)\n", created.ID, created.Category)
	}

	logger.Info(ctx, "session_started", "Customer session attached",
		map[string]any{"customer_id": opts.CustomerID, "booking_id": tracked})

	// share the meeting point periodically while a booking is tracked
	if tracked != "" && (opts.Lat != 0 || opts.Lng != 0) {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sess.PublishLocation(tracked, booking.GeoPoint{Lat: opts.Lat, Lng: opts.Lng})
				}
			}
		}()
	}

	<-ctx.Done()
	logger.Info(ctx, "session_stopped", "Customer session shutting down", nil)
	return nil
}

// toWSURL rewrites an http(s) base URL to its ws(s) counterpart.
func toWSURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
