package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// Publish sends a persistent JSON message and blocks until the broker
// confirms it. Mandatory routing is on; unroutable messages come back on
// the NotifyReturn stream and are logged there.
func (client *Client) Publish(exchange, routingKey string, body []byte) error {
	client.mu.RLock()
	conn, ch := client.conn, client.pubChan
	client.mu.RUnlock()

	switch {
	case conn == nil || conn.IsClosed():
		return errors.New("rabbitmq: connection is not open")
	case ch == nil || ch.IsClosed():
		return errors.New("rabbitmq: publish channel is not open")
	}

	// confirms arrive in publish order, so publishes are serialized to keep
	// each confirm matched to its message
	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, exchange, routingKey, true, false, msg); err != nil {
		return err
	}
	return awaitConfirm(ctx, confirms)
}

func awaitConfirm(ctx context.Context, confirms <-chan amqp.Confirmation) error {
	select {
	case c := <-confirms:
		if !c.Ack {
			return fmt.Errorf("rabbitmq: publish not acknowledged")
		}
		return nil
	case <-ctx.Done():
		// drain the confirm for this publish so the stream stays aligned
		select {
		case c := <-confirms:
			if !c.Ack {
				return fmt.Errorf("rabbitmq: publish not acknowledged after timeout")
			}
		case <-time.After(2 * time.Second):
		}
		return ctx.Err()
	}
}
