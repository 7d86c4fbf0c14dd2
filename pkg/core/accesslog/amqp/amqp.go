//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package amqp publishes audit events to a RabbitMQ topic exchange.  The
// routing key is the event kind, so consumers can bind to "grant.#" or
// "decision" independently.
package amqp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/caseaccess/accessengine/internal/logging"
	"github.com/caseaccess/accessengine/pkg/core/accesslog"
	"github.com/caseaccess/accessengine/pkg/core/config"
	"github.com/pkg/errors"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

var logger = logging.GetLogger("accessengine.accesslog.amqp")

const (
	agent          = "amqp"
	publishTimeout = 5 * time.Second
)

// Factory creates [Stream] instances connected to a broker.
type Factory struct {
	uri      string
	exchange string
}

// Stream publishes each event as a persistent JSON message.
//
// An amqp channel is not safe for concurrent publishing, so Send serializes.
type Stream struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewFactory creates a Factory for the given broker and exchange.
func NewFactory(uri, exchange string) accesslog.Factory {
	return &Factory{uri: uri, exchange: exchange}
}

// NewFactoryFromConfig reads audit.amqp.uri and audit.amqp.exchange.
func NewFactoryFromConfig() accesslog.Factory {
	return NewFactory(config.VConfig.GetString(config.AuditAMQPURI), config.VConfig.GetString(config.AuditAMQPExchange))
}

// NewStream dials the broker and declares the exchange.
func (f *Factory) NewStream() (accesslog.Stream, error) {
	if f.uri == "" {
		return nil, errors.New("audit.amqp.uri is not set")
	}

	conn, err := amqp091.Dial(f.uri)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to open a channel")
	}

	err = channel.ExchangeDeclare(
		f.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "failed to declare exchange")
	}

	logger.SysInfof("audit publisher initialized with exchange: %s", f.exchange)

	return &Stream{conn: conn, channel: channel, exchange: f.exchange}, nil
}

func publishing(event *accesslog.AuditEvent) (amqp091.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp091.Publishing{}, err
	}

	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Body:         body,
		Headers: amqp091.Table{
			"kind":  string(event.Kind),
			"actor": event.Actor,
		},
	}, nil
}

// Send publishes one event.
func (s *Stream) Send(event *accesslog.AuditEvent) error {
	msg, err := publishing(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.channel.PublishWithContext(ctx,
		s.exchange,         // exchange
		string(event.Kind), // routing key
		false,              // mandatory
		false,              // immediate
		msg,
	)
	if err != nil {
		return errors.Wrap(err, "failed to publish audit event")
	}

	logger.Tracef(agent, "Send", "published %s %s", event.Kind, event.ID)
	return nil
}

// Close closes the channel and the connection.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			logger.Warnf(agent, "Close", "error closing RabbitMQ channel: %v", err)
		}
		s.channel = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			logger.Warnf(agent, "Close", "error closing RabbitMQ connection: %v", err)
		}
		s.conn = nil
	}
}
