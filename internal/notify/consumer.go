package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// StatusSender delivers order status updates.
type StatusSender interface {
	SendStatusUpdate(ctx context.Context, u StatusUpdate) error
}

// Mail is what the consumer needs to deliver events by email.
type Mail interface {
	ReceiptSender
	StatusSender
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the events topic and mails receipts and status updates.
// Notification events are left to the in-app feed.
type Consumer struct {
	reader   messageReader
	mail     Mail
	log      zerolog.Logger
	attempts uint
	delay    time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, mail Mail, log zerolog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("kafka consumer: "+msg, args...)
		}),
	})
	return newConsumer(r, mail, log)
}

func newConsumer(r messageReader, mail Mail, log zerolog.Logger) *Consumer {
	return &Consumer{reader: r, mail: mail, log: log, attempts: 3, delay: time.Second}
}

// Run consumes until ctx is cancelled or the reader is closed. A message is
// committed once handled, including messages that could not be delivered
// after retrying; those are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.handle(ctx, m); err != nil {
			c.log.Error().Err(err).Int64("offset", m.Offset).Int("partition", m.Partition).Msg("dropping event")
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }

func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	ev, err := DecodeMessage(m)
	if err != nil {
		return err
	}
	var send func(context.Context) error
	switch ev.Type {
	case EventOrderReceipt:
		var r Receipt
		if err := json.Unmarshal(ev.Payload, &r); err != nil {
			return fmt.Errorf("decode receipt %s: %w", ev.ID, err)
		}
		send = func(ctx context.Context) error { return c.mail.SendReceipt(ctx, r) }
	case EventOrderStatus:
		var u StatusUpdate
		if err := json.Unmarshal(ev.Payload, &u); err != nil {
			return fmt.Errorf("decode status update %s: %w", ev.ID, err)
		}
		if u.RecipientEmail == "" {
			c.log.Debug().Str("order", u.OrderID).Str("recipient", u.RecipientID).Msg("no email on file, skipping")
			return nil
		}
		send = func(ctx context.Context) error { return c.mail.SendStatusUpdate(ctx, u) }
	default:
		return nil
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, send(ctx)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.delay)),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			c.log.Warn().Err(err).Str("event", ev.ID).Dur("retry_in", d).Msg("mail failed")
		}),
	)
	if err != nil {
		return fmt.Errorf("deliver %s %s: %w", ev.Type, ev.ID, err)
	}
	c.log.Info().Str("event", ev.ID).Str("type", ev.Type).Str("key", ev.Key).Msg("event delivered")
	return nil
}
