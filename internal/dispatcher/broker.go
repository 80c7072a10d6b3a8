package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hououinkami/wegram/internal/wire"
)

// brokerPrefetch is spec.md §4.6 Source 2's "prefetch 5".
const brokerPrefetch = 5

// BrokerSource is the durable-queue ingress path (spec.md §4.6 Source 2):
// each delivery's body is one wire.SyncMessageCallback-shaped JSON message.
type BrokerSource struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	log     *slog.Logger
}

// DialBroker connects to url and declares (or binds to) the durable queue
// named queue, with the prefetch count spec.md §4.6 mandates.
func DialBroker(url, queue string, log *slog.Logger) (*BrokerSource, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open broker channel: %w", err)
	}
	if err := ch.Qos(brokerPrefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set broker prefetch: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare broker queue %q: %w", queue, err)
	}
	return &BrokerSource{conn: conn, channel: ch, queue: queue, log: log.With("component", "dispatcher.broker")}, nil
}

// Consume runs the delivery loop until ctx is canceled: each message is
// decoded, handed to d.HandleSync and then ack'd; a body that fails to
// decode is nack'd without requeue. HandleSync only enqueues onto the
// per-contact workers, so a translation failure there does not change the
// delivery's ack.
func (b *BrokerSource) Consume(ctx context.Context, d *Dispatcher) error {
	deliveries, err := b.channel.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start broker consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("broker delivery channel closed")
			}
			b.handle(ctx, d, delivery)
		}
	}
}

func (b *BrokerSource) handle(ctx context.Context, d *Dispatcher, delivery amqp.Delivery) {
	var payload wire.SyncMessageCallback
	if err := json.Unmarshal(delivery.Body, &payload); err != nil {
		b.log.Warn("invalid broker message body", "error", err)
		_ = delivery.Nack(false, false)
		return
	}

	d.HandleSync(ctx, payload.Message, payload.Data.AddMsgs)
	if err := delivery.Ack(false); err != nil {
		b.log.Error("ack broker delivery failed", "error", err)
	}
}

// Close tears down the channel and connection.
func (b *BrokerSource) Close() error {
	b.channel.Close()
	return b.conn.Close()
}
