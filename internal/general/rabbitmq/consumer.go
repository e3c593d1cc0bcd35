package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// handlerTimeout bounds a single delivery; a stuck handler must not stall
// the whole queue.
const handlerTimeout = 30 * time.Second

// Consume reads a queue with manual acks until ctx ends or the channel dies.
// A handler error nacks without requeue so poison messages never loop.
func (client *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	defer ch.Close()

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: set QoS (prefetch=%d): %w", prefetch, err)
	}

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", queue, err)
	}

	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	// cancelling the consumer closes the deliveries stream, which lets the
	// range below drain in-flight messages and exit
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(consumerTag, false)
		case <-stop:
		}
	}()

	for d := range deliveries {
		hCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
		err := handler(hCtx, d)
		cancel()

		if err != nil {
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}

	if ctx.Err() != nil {
		return nil
	}
	select {
	case cerr := <-chClosed:
		if cerr != nil {
			return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
		}
	default:
	}
	return nil
}
