package records

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/kafka"
	"github.com/google/uuid"
)

// Handler adapts sink to a Kafka message handler. Messages that are not
// records are rejected and skipped, never retried.
func Handler(sink Sink, stats *Stats) kafka.MessageHandler {
	var mu sync.Mutex
	return func(ctx context.Context, key []byte, value []byte) error {
		rec, err := Decode(value)
		mu.Lock()
		defer mu.Unlock()
		stats.Records++
		if err != nil {
			stats.Undecodable++
			sink.Reject(ReasonUndecodable, fmt.Errorf("message %q: %w", key, err))
			return nil
		}
		if err := sink.Add(rec); err != nil {
			stats.Invalid++
		}
		return nil
	}
}

// Consume reads the whole record topic from its oldest retained message until
// it has been idle for idle. Every call uses a fresh consumer group, so each
// build sees the full topic regardless of earlier builds.
func Consume(ctx context.Context, cfg config.KafkaConfig, idle time.Duration, sink Sink) (Stats, error) {
	var stats Stats
	group := "docindex-build-" + uuid.NewString()
	consumer := kafka.NewConsumer(cfg, cfg.Topics.SymbolRecords, Handler(sink, &stats),
		kafka.WithGroup(group),
		kafka.FromBeginning(),
	)
	defer consumer.Close()

	start := time.Now()
	if _, err := consumer.Drain(ctx, idle); err != nil {
		return stats, fmt.Errorf("consuming %s: %w", cfg.Topics.SymbolRecords, err)
	}
	slog.Default().With("component", "record-consumer").Info("records consumed",
		"topic", cfg.Topics.SymbolRecords,
		"group", group,
		"records", stats.Records,
		"undecodable", stats.Undecodable,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return stats, nil
}

// EventPublisher is the write side of a Kafka topic.
type EventPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Publisher is a Sink that forwards records to the record topic in batches,
// keyed by normalised key so homonyms stay on one partition.
type Publisher struct {
	ctx       context.Context
	pub       EventPublisher
	batchSize int
	pending   []kafka.Event
	published int
	err       error
	rejected  int
	logger    *slog.Logger
}

func NewPublisher(ctx context.Context, pub EventPublisher, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Publisher{
		ctx:       ctx,
		pub:       pub,
		batchSize: batchSize,
		logger:    slog.Default().With("component", "record-publisher"),
	}
}

// Add validates and queues rec. Once a publish has failed every later call
// returns that error.
func (p *Publisher) Add(rec symbol.Record) error {
	if p.err != nil {
		return p.err
	}
	if err := symbol.Validate(rec); err != nil {
		p.rejected++
		p.logger.Warn("record not published", "name", rec.Name, "error", err)
		return err
	}
	p.pending = append(p.pending, kafka.Event{Key: symbol.NormalizeKey(rec.Name), Value: rec})
	if len(p.pending) >= p.batchSize {
		return p.Flush()
	}
	return nil
}

func (p *Publisher) Reject(reason string, err error) {
	p.rejected++
	p.logger.Warn("record not published", "reason", reason, "error", err)
}

// Flush publishes queued records.
func (p *Publisher) Flush() error {
	if p.err != nil {
		return p.err
	}
	if len(p.pending) == 0 {
		return nil
	}
	if err := p.pub.PublishBatch(p.ctx, p.pending); err != nil {
		p.err = fmt.Errorf("publishing records: %w", err)
		return p.err
	}
	p.published += len(p.pending)
	p.pending = p.pending[:0]
	return nil
}

// Published returns how many records reached the topic.
func (p *Publisher) Published() int { return p.published }

// Rejected returns how many records were held back as malformed.
func (p *Publisher) Rejected() int { return p.rejected }
