package repository

import (
	"testing"

	"github.com/rpattn/canvass/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoterQueryDefaultsExcludeMerged(t *testing.T) {
	org := uuid.New()
	sql, args := newVoterQuery(org).applyFilter(domain.VoterFilter{}).selectSQL(50, 10)

	assert.Contains(t, sql, "WHERE organization_id = $1 AND merged_into_voter_id IS NULL ORDER BY")
	assert.Contains(t, sql, "LIMIT $2 OFFSET $3")
	assert.Equal(t, []any{org, 50, 10}, args)
}

func TestVoterQueryCombinesFilters(t *testing.T) {
	org := uuid.New()
	q := newVoterQuery(org).applyFilter(domain.VoterFilter{
		Search:        "o'neil_",
		Source:        domain.VoterSourceImport,
		Phone:         " 555-0100 ",
		IncludeMerged: true,
	})

	countSQL, countArgs := q.countSQL()
	assert.NotContains(t, countSQL, "merged_into_voter_id")
	assert.Contains(t, countSQL, "source = $2")
	assert.Contains(t, countSQL, "phone = $3")
	assert.Contains(t, countSQL, "first_name ILIKE $4")
	require.Len(t, countArgs, 4)
	assert.Equal(t, "import", countArgs[1])
	assert.Equal(t, "555-0100", countArgs[2])
	assert.Equal(t, `%o'neil\_%`, countArgs[3])

	selectSQL, selectArgs := q.selectSQL(20, 0)
	assert.Contains(t, selectSQL, "LIMIT $5 OFFSET $6")
	assert.Len(t, selectArgs, 6)
	// building the select must not grow the shared argument list
	_, again := q.countSQL()
	assert.Len(t, again, 4)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
