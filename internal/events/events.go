// Package events publishes import lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Import lifecycle event types.
const (
	ImportStarted   = "import.started"
	ImportCompleted = "import.completed"
	ImportFailed    = "import.failed"
)

// ImportEvent is the message body published for each lifecycle transition.
type ImportEvent struct {
	Type       string          `json:"type"`
	JobID      uuid.UUID       `json:"jobId"`
	TenantID   uuid.UUID       `json:"tenantId"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Publisher fans lifecycle events out to listeners. Publishing is best effort.
type Publisher interface {
	PublishImport(ctx context.Context, event ImportEvent) error
}

// RedisPublisher publishes on the channel <prefix>:imports:<tenantId>.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "canvass"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the tenant channel name.
func (p *RedisPublisher) Channel(tenantID uuid.UUID) string {
	return fmt.Sprintf("%s:imports:%s", p.prefix, tenantID)
}

func (p *RedisPublisher) PublishImport(ctx context.Context, event ImportEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal import event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(event.TenantID), body).Err(); err != nil {
		return fmt.Errorf("failed to publish import event: %w", err)
	}
	return nil
}

// LogPublisher writes events to the log. Used when Redis is not configured.
type LogPublisher struct {
	logger *logrus.Entry
}

func NewLogPublisher(logger *logrus.Entry) *LogPublisher {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = logrus.NewEntry(l)
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishImport(_ context.Context, event ImportEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event":     event.Type,
		"job_id":    event.JobID,
		"tenant_id": event.TenantID,
	}).Info("import event")
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishImport(context.Context, ImportEvent) error { return nil }
