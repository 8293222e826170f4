package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"gatehouse/pkg/domain"
	"gatehouse/pkg/requestcontext"
)

// recordProducer is the subset of the Kafka client the publisher needs; tests
// substitute a fake.
type recordProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// changelogEvent is the wire shape published to the changelog topic.
type changelogEvent struct {
	EntityType string            `json:"entity_type"`
	EntityID   int64             `json:"entity_id"`
	ActorID    int64             `json:"actor_id"`
	Changes    map[string]Change `json:"changes"`
	LoggedAt   time.Time         `json:"logged_at"`
}

// Publisher is a ChangeLogger that writes through to a backing store and then
// fans the entry out to Kafka. The produce is asynchronous and best-effort:
// downstream consumers (search indexing, compliance export) reconcile from
// the store, so a dropped record is a cosmetic gap, not data loss.
type Publisher struct {
	next     ChangeLogger
	producer recordProducer
	topic    string
	logger   *slog.Logger
}

// NewPublisher wraps a ChangeLogger with Kafka fan-out.
func NewPublisher(next ChangeLogger, producer recordProducer, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{next: next, producer: producer, topic: topic, logger: logger}
}

// LogChanges persists through the backing store first; only a successful
// write is announced.
func (p *Publisher) LogChanges(ctx context.Context, entityType string, entityID int64, changes map[string]Change, actorID domain.UserID) error {
	if err := p.next.LogChanges(ctx, entityType, entityID, changes, actorID); err != nil {
		return err
	}

	payload, err := json.Marshal(changelogEvent{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    int64(actorID),
		Changes:    changes,
		LoggedAt:   requestcontext.Now(ctx),
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "encode changelog event", "error", err)
		return nil
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entityType + ":" + strconv.FormatInt(entityID, 10)),
		Value: payload,
	}
	p.producer.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("publish changelog event", "topic", p.topic, "error", err)
		}
	})
	return nil
}
