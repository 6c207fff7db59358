package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type claimed struct {
	ID          uuid.UUID
	JobName     string
	TenantID    uuid.UUID
	Payload     []byte
	Attempts    int
	MaxAttempts int
	Redelivered bool
}

type queueDepth struct {
	pending int64
	locked  int64
	dead    int64
}

// backend holds the SQL a Worker needs so the dispatch loop can be exercised
// without a database.
type backend interface {
	claim(ctx context.Context, jobNames []string, now, lockCutoff time.Time) (*claimed, error)
	heartbeat(ctx context.Context, id uuid.UUID, now time.Time) error
	ack(ctx context.Context, id uuid.UUID) error
	nack(ctx context.Context, id uuid.UUID, lastError string, nextAvailable time.Time) error
	dead(ctx context.Context, id uuid.UUID, lastError string) error
	depth(ctx context.Context) (queueDepth, error)
}

type pgBackend struct {
	pool  *pgxpool.Pool
	table string
}

func newPGBackend(pool *pgxpool.Pool, table pgx.Identifier) *pgBackend {
	return &pgBackend{pool: pool, table: table.Sanitize()}
}

// claim locks at most one ready message. A message is ready when it is
// unlocked and has attempts left, or when its holder stopped heartbeating.
func (b *pgBackend) claim(ctx context.Context, jobNames []string, now, lockCutoff time.Time) (*claimed, error) {
	q := fmt.Sprintf(
		`WITH next AS (
		    SELECT id, locked_at IS NOT NULL AS redelivered
		      FROM %[1]s
		     WHERE completed_at IS NULL
		       AND dead_at IS NULL
		       AND job_name = ANY($2)
		       AND available_at <= $1
		       AND ((locked_at IS NULL AND attempts < max_attempts) OR locked_at < $3)
		     ORDER BY available_at, created_at
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		)
		UPDATE %[1]s q
		   SET locked_at = $1,
		       attempts = q.attempts + 1
		  FROM next
		 WHERE q.id = next.id
		RETURNING q.id, q.job_name, q.tenant_id, q.payload, q.attempts, q.max_attempts, next.redelivered`,
		b.table,
	)

	var c claimed
	err := b.pool.QueryRow(ctx, q, now, jobNames, lockCutoff).Scan(
		&c.ID, &c.JobName, &c.TenantID, &c.Payload, &c.Attempts, &c.MaxAttempts, &c.Redelivered,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue claim: %w", err)
	}
	return &c, nil
}

func (b *pgBackend) heartbeat(ctx context.Context, id uuid.UUID, now time.Time) error {
	q := fmt.Sprintf(`UPDATE %s SET locked_at = $2 WHERE id = $1 AND completed_at IS NULL AND dead_at IS NULL`, b.table)
	if _, err := b.pool.Exec(ctx, q, id, now); err != nil {
		return fmt.Errorf("queue heartbeat: %w", err)
	}
	return nil
}

func (b *pgBackend) ack(ctx context.Context, id uuid.UUID) error {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET completed_at = now(),
		        locked_at = NULL,
		        last_error = NULL
		  WHERE id = $1 AND completed_at IS NULL`,
		b.table,
	)
	if _, err := b.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("queue ack: %w", err)
	}
	return nil
}

func (b *pgBackend) nack(ctx context.Context, id uuid.UUID, lastError string, nextAvailable time.Time) error {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET locked_at = NULL,
		        last_error = $2,
		        available_at = $3
		  WHERE id = $1 AND completed_at IS NULL`,
		b.table,
	)
	if _, err := b.pool.Exec(ctx, q, id, lastError, nextAvailable); err != nil {
		return fmt.Errorf("queue nack: %w", err)
	}
	return nil
}

func (b *pgBackend) dead(ctx context.Context, id uuid.UUID, lastError string) error {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET locked_at = NULL,
		        last_error = $2,
		        dead_at = now()
		  WHERE id = $1 AND completed_at IS NULL`,
		b.table,
	)
	if _, err := b.pool.Exec(ctx, q, id, lastError); err != nil {
		return fmt.Errorf("queue dead: %w", err)
	}
	return nil
}

func (b *pgBackend) depth(ctx context.Context) (queueDepth, error) {
	q := fmt.Sprintf(
		`SELECT count(*) FILTER (WHERE completed_at IS NULL AND dead_at IS NULL),
		        count(*) FILTER (WHERE completed_at IS NULL AND dead_at IS NULL AND locked_at IS NOT NULL),
		        count(*) FILTER (WHERE dead_at IS NOT NULL)
		   FROM %s`,
		b.table,
	)
	var d queueDepth
	if err := b.pool.QueryRow(ctx, q).Scan(&d.pending, &d.locked, &d.dead); err != nil {
		return queueDepth{}, fmt.Errorf("queue depth: %w", err)
	}
	return d, nil
}
