package repository

import (
	"fmt"
	"strings"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
)

const voterColumns = `id, organization_id, external_id, source, merged_into_voter_id,
	first_name, middle_name, last_name, suffix, age, gender, race, party, phone, email,
	address, unit, city, state, zip, latitude, longitude, created_at, updated_at`

// voterQuery accumulates WHERE clauses and positional arguments so list and
// count statements share one filter.
type voterQuery struct {
	conditions []string
	args       []any
}

func newVoterQuery(organizationID uuid.UUID) *voterQuery {
	q := &voterQuery{}
	q.where("organization_id = %s", organizationID)
	return q
}

func (q *voterQuery) where(format string, value any) {
	q.args = append(q.args, value)
	q.conditions = append(q.conditions, fmt.Sprintf(format, fmt.Sprintf("$%d", len(q.args))))
}

func (q *voterQuery) applyFilter(filter domain.VoterFilter) *voterQuery {
	if !filter.IncludeMerged {
		q.conditions = append(q.conditions, "merged_into_voter_id IS NULL")
	}
	if filter.Source != "" {
		q.where("source = %s", string(filter.Source))
	}
	if phone := strings.TrimSpace(filter.Phone); phone != "" {
		q.where("phone = %s", phone)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		q.args = append(q.args, pattern)
		p := fmt.Sprintf("$%d", len(q.args))
		q.conditions = append(q.conditions, fmt.Sprintf(
			"(first_name ILIKE %[1]s OR last_name ILIKE %[1]s OR (first_name || ' ' || last_name) ILIKE %[1]s OR external_id ILIKE %[1]s OR phone ILIKE %[1]s OR address ILIKE %[1]s)",
			p,
		))
	}
	return q
}

func (q *voterQuery) whereClause() string {
	return strings.Join(q.conditions, " AND ")
}

func (q *voterQuery) selectSQL(limit, offset int) (string, []any) {
	args := append([]any{}, q.args...)
	args = append(args, limit, offset)
	sql := fmt.Sprintf(
		`SELECT %s FROM voters WHERE %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`,
		voterColumns, q.whereClause(), len(args)-1, len(args),
	)
	return sql, args
}

func (q *voterQuery) countSQL() (string, []any) {
	return fmt.Sprintf(`SELECT count(*) FROM voters WHERE %s`, q.whereClause()), append([]any{}, q.args...)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
