package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"klinearchive/internal/ports"
)

// DayCompleted is the event published after a day file is stored.
type DayCompleted struct {
	RunID     string    `json:"run_id"`
	Ticker    string    `json:"ticker"`
	Day       string    `json:"day"`
	Records   int       `json:"records"`
	Bytes     int       `json:"bytes"`
	SHA256    string    `json:"sha256"`
	Attempts  int       `json:"attempts"`
	FetchedAt time.Time `json:"fetched_at"`
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements ports.DayPublisher on a Kafka topic.
type Publisher struct {
	writer messageWriter
	logger ports.Logger
}

// Config holds configuration for the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string
	Logger  ports.Logger
}

// New creates a publisher writing to cfg.Topic.
func New(cfg Config) (*Publisher, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Kafka publisher")
	}
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required: %w", ports.ErrConfigurationError)
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	cfg.Logger.Debug(context.Background(), "Kafka publisher configured", map[string]interface{}{"brokers": cfg.Brokers, "topic": cfg.Topic})
	return &Publisher{writer: writer, logger: cfg.Logger}, nil
}

// PublishDay sends a DayCompleted event keyed by ticker/day.
func (p *Publisher) PublishDay(ctx context.Context, rec *ports.DayRecord) error {
	msg, err := newMessage(rec)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish day %s/%s: %w: %w", rec.Ticker, rec.Day, ports.ErrPublishFailed, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(rec *ports.DayRecord) (kafka.Message, error) {
	value, err := json.Marshal(DayCompleted{
		RunID:     rec.RunID,
		Ticker:    rec.Ticker,
		Day:       rec.Day.String(),
		Records:   rec.Records,
		Bytes:     rec.Bytes,
		SHA256:    rec.SHA256,
		Attempts:  rec.Attempts,
		FetchedAt: rec.FetchedAt.UTC(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode day event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(rec.Ticker + "/" + rec.Day.String()),
		Value: value,
		Time:  rec.FetchedAt,
	}, nil
}

// Nop is a ports.DayPublisher that discards events; used when Kafka is not configured.
type Nop struct{}

func (Nop) PublishDay(context.Context, *ports.DayRecord) error { return nil }
func (Nop) Close() error                                       { return nil }
