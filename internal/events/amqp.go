package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"parkreserve-backend/internal/logger"
)

// amqpChannel is the subset of *amqp.Channel the publisher needs.
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange, routed by event
// type.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	logger.Info("Connecting to RabbitMQ", "exchange", exchange)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("RabbitMQ exchange declared", "exchange", exchange)
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func newAMQPPublisherWithChannel(ch amqpChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{channel: ch, exchange: exchange}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(
		p.exchange, // exchange
		ev.Type,    // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    ev.OccurredAt,
			Type:         ev.Type,
			Body:         body,
		},
	)
	logger.ExternalServiceResult("rabbitmq", "publish", err, "type", ev.Type, "bookingCode", ev.BookingCode)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
