package websocket

import (
	"context"
	"sync"
	"time"

	"service-hub/internal/general/jwt"
	"service-hub/internal/general/logger"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readWindow       = 60 * time.Second
	pingPeriod       = 30 * time.Second
)

// BookingResolver resolves the actors of a booking so inbound telemetry can
// be routed to the opposite side.
type BookingResolver interface {
	ActorsFor(ctx context.Context, bookingID string) (customerID string, workerID string, err error)
}

// RelayPublisher forwards telemetry to the broker so other hub instances can
// deliver it to sessions connected there. nil disables relaying.
type RelayPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Gateway terminates the event channel WebSockets for both roles. Sessions
// authenticate with a first-frame JWT; after that the socket carries
// {"type": ..., "data": ...} envelopes both ways.
type Gateway struct {
	log      *logger.Logger
	jwtMgr   *jwt.Manager
	resolver BookingResolver
	relay    RelayPublisher

	writeLocks    sync.Map // *websocket.Conn -> *sync.Mutex
	workerConns   sync.Map // workerID -> *websocket.Conn
	customerConns sync.Map // customerID -> *websocket.Conn
}

// NewGateway creates the WebSocket gateway.
func NewGateway(log *logger.Logger, jwtMgr *jwt.Manager, resolver BookingResolver, relay RelayPublisher) *Gateway {
	return &Gateway{
		log:      log,
		jwtMgr:   jwtMgr,
		resolver: resolver,
		relay:    relay,
	}
}
