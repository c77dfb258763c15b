package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"partstore-core/internal/client"
	"partstore-core/internal/metrics"
	"partstore-core/internal/model"
	"partstore-core/internal/repository"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, msgs ...client.Message) error
}

// Envelope is the wire format of every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	Payload       json.RawMessage `json:"payload"`
}

// OutboxRelay copies committed outbox rows to the message broker. Delivery is
// at least once: a crash between publish and mark republishes the batch.
type OutboxRelay struct {
	outbox    repository.OutboxRepository
	publisher Publisher
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewOutboxRelay(outbox repository.OutboxRepository, publisher Publisher, interval time.Duration, batchSize int, log *zap.Logger) *OutboxRelay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		log:       log.Named("outbox"),
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one.
func (r *OutboxRelay) Run(ctx context.Context) {
	r.log.Info("outbox relay started", zap.Duration("interval", r.interval))
	defer r.log.Info("outbox relay stopped")

	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.log.Error("relay outbox batch", zap.Error(err))
		}
		if err == nil && n == r.batchSize {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// RelayOnce publishes one batch in id order and returns how many events went out.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]client.Message, 0, len(events))
	ids := make([]uint, 0, len(events))
	for _, ev := range events {
		msg, err := toMessage(ev)
		if err != nil {
			// A broken row would block the queue forever; skip it and say so.
			metrics.OutboxPublished.WithLabelValues("skipped").Inc()
			r.log.Error("unencodable outbox event", zap.Uint("id", ev.ID), zap.String("event_id", ev.EventID), zap.Error(err))
			ids = append(ids, ev.ID)
			continue
		}
		msgs = append(msgs, msg)
		ids = append(ids, ev.ID)
	}

	if len(msgs) > 0 {
		if err := r.publisher.Publish(ctx, msgs...); err != nil {
			metrics.OutboxPublished.WithLabelValues("error").Add(float64(len(msgs)))
			return 0, fmt.Errorf("publish %d events: %w", len(msgs), err)
		}
	}

	if err := r.outbox.MarkPublished(ctx, ids); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	metrics.OutboxPublished.WithLabelValues("published").Add(float64(len(msgs)))
	r.log.Debug("outbox batch relayed", zap.Int("count", len(msgs)))
	return len(msgs), nil
}

func toMessage(ev *model.OutboxEvent) (client.Message, error) {
	if !json.Valid([]byte(ev.Payload)) {
		return client.Message{}, fmt.Errorf("payload is not valid JSON")
	}

	value, err := json.Marshal(Envelope{
		EventID:       ev.EventID,
		EventType:     ev.EventType,
		EventVersion:  1,
		AggregateType: ev.AggregateType,
		AggregateID:   ev.AggregateID,
		OccurredAt:    ev.CreatedAt.UTC(),
		Producer:      "partstore-core",
		Payload:       json.RawMessage(ev.Payload),
	})
	if err != nil {
		return client.Message{}, err
	}

	return client.Message{
		Key:   ev.AggregateType + ":" + ev.AggregateID,
		Value: value,
		Headers: map[string]string{
			"event_type": ev.EventType,
			"event_id":   ev.EventID,
		},
	}, nil
}
