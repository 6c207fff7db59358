package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Publisher interface {
	// Enqueue inserts msg through db. Passing a pgx.Tx makes the message
	// visible only when the surrounding transaction commits.
	Enqueue(ctx context.Context, db Queryer, msg Message) (uuid.UUID, error)
}

type publisher struct {
	table pgx.Identifier
	m     *metrics
}

func NewPublisher(table pgx.Identifier) Publisher {
	if len(table) == 0 {
		table = DefaultTable
	}
	return &publisher{table: table, m: getMetrics()}
}

func (p *publisher) Enqueue(ctx context.Context, db Queryer, msg Message) (uuid.UUID, error) {
	if db == nil {
		return uuid.Nil, configError("db is required")
	}
	if msg.TenantID == uuid.Nil {
		return uuid.Nil, configError("tenant_id is required")
	}
	if msg.JobName == "" {
		return uuid.Nil, configError("job name is required")
	}
	if len(msg.Payload) == 0 {
		return uuid.Nil, configError("payload is required")
	}

	maxAttempts := msg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	availableAt := msg.AvailableAt
	if availableAt.IsZero() {
		availableAt = time.Now()
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (id, job_name, tenant_id, payload, max_attempts, available_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		p.table.Sanitize(),
	)

	var id uuid.UUID
	if err := db.QueryRow(ctx, q, uuid.New(), msg.JobName, msg.TenantID, msg.Payload, maxAttempts, availableAt).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("queue enqueue: %w", err)
	}

	p.m.enqueueTotal.WithLabelValues(TableLabel(p.table), msg.JobName).Inc()

	return id, nil
}
