package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Event types carried on the events topic.
const (
	EventNotification = "notification.created"
	EventOrderReceipt = "order.receipt"
	EventOrderStatus  = "order.status"
)

// Event is the envelope published for every side effect other services
// may react to. Key is the recipient's user id.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEvent(typ, key string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    b,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// LogPublisher writes events to the log. It is used when no brokers are
// configured.
type LogPublisher struct {
	log zerolog.Logger
}

func NewLogPublisher(log zerolog.Logger) *LogPublisher { return &LogPublisher{log: log} }

func (p *LogPublisher) Publish(ctx context.Context, events ...Event) error {
	for _, e := range events {
		p.log.Info().Str("type", e.Type).Str("key", e.Key).RawJSON("payload", e.Payload).Msg("event")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	topic  string
	closed atomic.Bool
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true, KeepAlive: 30 * time.Second}
				return dialer.DialContext(ctx, network, address)
			},
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("kafka producer: "+msg, args...)
		}),
	}
	return newKafkaPublisher(w, topic)
}

func newKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

var ErrPublisherClosed = errors.New("publisher closed")

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.Key),
			Value: b,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}

// DecodeMessage turns a consumed Kafka message back into an Event.
func DecodeMessage(m kafka.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return Event{}, fmt.Errorf("decode event at offset %d: %w", m.Offset, err)
	}
	return e, nil
}
