package queue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DefaultTable is the table created by the initial migration.
var DefaultTable = pgx.Identifier{"queue_jobs"}

// Message is the unit stored in the queue table.
type Message struct {
	JobName  string
	TenantID uuid.UUID
	Payload  json.RawMessage

	// MaxAttempts bounds handler failures before the message is marked dead.
	// Zero keeps the column default of one attempt.
	MaxAttempts int
	// AvailableAt delays the first delivery. Zero means now.
	AvailableAt time.Time
}

// Delivery is the unit handed to a Handler.
type Delivery struct {
	ID          uuid.UUID
	JobName     string
	TenantID    uuid.UUID
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	// Redelivered is true when the previous holder's lock expired.
	Redelivered bool
}

// Handler processes one delivery. A nil return acks the message.
type Handler interface {
	Handle(ctx context.Context, d Delivery) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, d Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// Queryer is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type Queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TableLabel renders a table identifier for metrics and logs.
func TableLabel(table pgx.Identifier) string {
	if len(table) == 0 {
		return ""
	}
	return strings.Join(table, ".")
}
