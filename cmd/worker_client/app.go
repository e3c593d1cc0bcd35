package workerclient

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"service-hub/internal/domain/booking"
	"service-hub/internal/domain/worker"
	"service-hub/internal/general/config"
	"service-hub/internal/general/logger"
	"service-hub/internal/session"
	"service-hub/internal/session/alert"
	"service-hub/internal/session/channel"
	"service-hub/internal/session/navigation"
	"service-hub/internal/session/rest"

	"service-hub/internal/domain/user"
)

// Options configures one worker session run.
type Options struct {
	ConfigPath string
	WorkerID   string
	Token      string
	Categories string  // comma-separated category names this worker claims
	StartLat   float64 // initial GPS position for the simulated source
	StartLng   float64
	Auto       bool // accept the first offer and walk the full lifecycle
}

// Run attaches a worker session to the hub and blocks until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	logger := logger.New("worker-client")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	// the session claims categories locally; the hub re-checks on accept
	categories := make(map[string]worker.VerificationStatus)
	for _, name := range strings.Split(opts.Categories, ",") {
		if name = strings.TrimSpace(name); name != "" {
			categories[name] = worker.VerificationVerified
		}
	}
	profile, err := worker.NewProfile(opts.WorkerID, categories)
	if err != nil {
		return err
	}

	api := rest.New(cfg.Dispatch.URL, opts.Token)

	wsURL := toWSURL(cfg.Dispatch.URL) + "/ws/worker/" + opts.WorkerID
	ch := channel.New(logger, wsURL, opts.WorkerID, user.RoleWorker, opts.Token, channel.Options{
		BackoffMin: time.Duration(cfg.Channel.ReconnectMinMS) * time.Millisecond,
		BackoffMax: time.Duration(cfg.Channel.ReconnectMaxMS) * time.Millisecond,
	})

	alerter := alert.New(logger, &consoleAlerts{}, cfg.AlertInterval(), cfg.AlertTimeout())

	source := &simulatedGPS{lat: opts.StartLat, lng: opts.StartLng}

	autoCh := make(chan string, 8)
	sess := session.NewWorkerSession(logger, session.WorkerConfig{
		Profile:        profile,
		API:            api,
		Channel:        ch,
		Alerter:        alerter,
		LocationSource: source,
		Navigation: navigation.Options{
			SampleInterval: cfg.SampleInterval(),
			MinMoveMeters:  cfg.Navigation.MinMoveMeters,
		},
		Events: session.WorkerEvents{
			OnNewRequest: func(b *booking.Booking) {
				fmt.Printf("[offer] %s %s at %s for %.2f\n", b.ID, b.ServiceName, b.Address, b.Price)
				if opts.Auto {
					select {
					case autoCh <- b.ID:
					default:
					}
				}
			},
			OnRaceLost: func(b *booking.Booking) {
				fmt.Printf("[gone] %s was taken by another worker\n", b.ID)
			},
			OnCancelled: func(bookingID, reason string) {
				fmt.Printf("[cancelled] %s: %s\n", bookingID, reason)
			},
			OnNavUpdate: func(snap navigation.Snapshot) {
				fmt.Printf("[nav] %s: %.2f km, eta %d min\n", snap.Phase, snap.DistanceKM, snap.ETAMinutes)
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

	logger.Info(ctx, "session_started", "Worker session attached",
		map[string]any{"worker_id": opts.WorkerID, "categories": opts.Categories, "auto": opts.Auto})

	if opts.Auto {
		go autopilot(ctx, sess, source, autoCh)
	}

	<-ctx.Done()
	logger.Info(ctx, "session_stopped", "Worker session shutting down", nil)
	return nil
}

// autopilot accepts each offer and drives the lifecycle end to end with
// human-ish delays. Demo wiring only.
func autopilot(ctx context.Context, sess *session.WorkerSession, gps *simulatedGPS, offers <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-offers:
			b, err := sess.Accept(ctx, id)
			if err != nil {
				continue // lost the race or transport failure; next offer
			}
			if b.Coordinate != nil {
				gps.driftToward(b.Coordinate.Lat, b.Coordinate.Lng)
			}

			if err := sess.StartNavigation(ctx, id); err != nil {
				continue
			}
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			if err := sess.Arrive(ctx, id); err != nil {
				continue
			}
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
			if err := sess.StartWork(ctx, id); err != nil {
				continue
			}
			if !sleepCtx(ctx, 10*time.Second) {
				return
			}
			_ = sess.CompleteWork(ctx, id)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// consoleAlerts renders the alert timer on stdout. A real client binds sound
// and vibration here.
type consoleAlerts struct{}

func (consoleAlerts) Alert(b *booking.Booking) {
	fmt.Printf("\a[alert] new request %s (%s)\n", b.ID, b.ServiceName)
}

func (consoleAlerts) ShowBanner(b *booking.Booking) {
	fmt.Printf("[banner] %s at %s\n", b.ServiceName, b.Address)
}

func (consoleAlerts) HideBanner() {
	fmt.Println("[banner] dismissed")
}

// simulatedGPS is a location source that wanders around its position, and
// jumps near a target when the autopilot "travels".
type simulatedGPS struct {
	mu  sync.Mutex
	lat float64
	lng float64
}

func (s *simulatedGPS) Current(ctx context.Context) (booking.GeoPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// ~10m of jitter per sample
	s.lat += (rand.Float64() - 0.5) * 0.0002
	s.lng += (rand.Float64() - 0.5) * 0.0002
	return booking.GeoPoint{Lat: s.lat, Lng: s.lng}, nil
}

func (s *simulatedGPS) driftToward(lat, lng float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lat = lat + (rand.Float64()-0.5)*0.001
	s.lng = lng + (rand.Float64()-0.5)*0.001
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
