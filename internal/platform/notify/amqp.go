package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"canditrack/internal/domain/model"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBus fans queue events out through a RabbitMQ fanout exchange. Every
// subscriber gets its own exclusive auto-delete queue.
type AMQPBus struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

func NewAMQPBus(url, exchange string, logger *slog.Logger) (*AMQPBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := connectWithRetry(url, 5, 2*time.Second, logger)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	logger.Info("connected to rabbitmq", "exchange", exchange)
	return &AMQPBus{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

func connectWithRetry(url string, maxRetries int, delay time.Duration, logger *slog.Logger) (*amqp.Connection, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("rabbitmq connect failed", "attempt", i+1, "max", maxRetries, "err", err)
		if i < maxRetries-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", maxRetries, err)
}

func (b *AMQPBus) Publish(ctx context.Context, event model.QueueEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal queue event: %w", err)
	}
	err = b.channel.PublishWithContext(ctx,
		b.exchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", b.exchange, err)
	}
	return nil
}

func (b *AMQPBus) Subscribe(ctx context.Context) (<-chan model.QueueEvent, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan model.QueueEvent, 16)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var event model.QueueEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					b.logger.Warn("dropping malformed queue event", "exchange", b.exchange, "err", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQPBus) Close() error {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
