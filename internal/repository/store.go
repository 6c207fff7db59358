package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/canvass/internal/db"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/queue"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool      *pgxpool.Pool
	publisher queue.Publisher
}

// NewStore wires a Store backed by pgxpool. Enqueued jobs go through publisher.
func NewStore(pool *pgxpool.Pool, publisher queue.Publisher) Store {
	if publisher == nil {
		publisher = queue.NewPublisher(queue.DefaultTable)
	}
	return &pgStore{pool: pool, publisher: publisher}
}

func (s *pgStore) Repos() Repositories {
	return newRepositories(s.pool, s.publisher)
}

func (s *pgStore) WithTx(ctx context.Context, fn func(Repositories) error) error {
	return db.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newRepositories(tx, s.publisher))
	})
}

func newRepositories(conn DBTX, publisher queue.Publisher) Repositories {
	return Repositories{
		Organizations: NewOrganizationRepository(conn),
		Voters:        NewVoterRepository(conn),
		ImportJobs:    NewImportJobRepository(conn),
		MergeAlerts:   NewMergeAlertRepository(conn),
		Interactions:  NewInteractionRepository(conn),
		ListMembers:   NewListMemberRepository(conn),
		AuditLogs:     NewAuditLogRepository(conn),
		Queue:         &jobQueue{db: conn, publisher: publisher},
	}
}

type jobQueue struct {
	db        DBTX
	publisher queue.Publisher
}

func (q *jobQueue) Enqueue(ctx context.Context, jobName string, tenantID uuid.UUID, payload json.RawMessage) (uuid.UUID, error) {
	return q.publisher.Enqueue(ctx, q.db, queue.Message{
		JobName:  jobName,
		TenantID: tenantID,
		Payload:  payload,
	})
}

// notFound maps pgx.ErrNoRows to domain.ErrNotFound, wrapping everything else.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

// isUniqueViolation reports whether err is a Postgres unique_violation on constraint.
// An empty constraint matches any unique violation.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
