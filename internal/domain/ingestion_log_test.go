package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordRowIssueCaps(t *testing.T) {
	var result ImportResult
	for i := 1; i <= MaxRecordedRowIssues+5; i++ {
		result.RecordRowIssue(ImportRowIssue{Row: i, Reason: RowIssueMissingExternalID})
	}
	assert.Len(t, result.SkippedRows, MaxRecordedRowIssues)
	assert.Equal(t, MaxRecordedRowIssues, result.SkippedRows[len(result.SkippedRows)-1].Row)
}
