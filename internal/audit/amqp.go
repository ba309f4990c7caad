// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the exchange entries are published to.
const DefaultExchange = "starhost.audit"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPSink publishes entries to a topic exchange with the routing key
// "update.<bot id>".
type AMQPSink struct {
	exchange   string
	log        *slog.Logger
	newChannel func() (channel, error)
	close      func() error
}

// NewAMQPSink connects to the broker at url and declares the exchange.
func NewAMQPSink(url, exchange string, logger *slog.Logger) (*AMQPSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPSink{
		exchange: exchange,
		log:      logger,
		newChannel: func() (channel, error) {
			return conn.Channel()
		},
		close: conn.Close,
	}, nil
}

// Record implements [Sink].
func (s *AMQPSink) Record(ctx context.Context, e Entry) error {
	ch, err := s.newChannel()
	if err != nil {
		return err
	}
	defer ch.Close()
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	msgID := e.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	key := "update." + e.BotID

	err = ch.PublishWithContext(
		ctx, s.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msgID,
			Timestamp:    e.Timestamp,
			Body:         body,
		},
	)
	if err == nil {
		s.log.Debug("published", slog.String("key", key), slog.String("exchange", s.exchange))
	}
	return err
}

// Close implements [Sink].
func (s *AMQPSink) Close() error {
	return s.close()
}
