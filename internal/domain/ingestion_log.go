package domain

// MaxRecordedRowIssues caps how many skipped rows an import result lists.
// Counts stay exact past the cap.
const MaxRecordedRowIssues = 100

// Row issue reasons.
const (
	RowIssueMissingExternalID = "missing_external_id"
)

// ImportRowIssue records one row an import skipped. Row is 1-based over data
// rows, so the header line is not counted.
type ImportRowIssue struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// RecordRowIssue appends issue unless the cap is reached.
func (r *ImportResult) RecordRowIssue(issue ImportRowIssue) {
	if len(r.SkippedRows) >= MaxRecordedRowIssues {
		return
	}
	r.SkippedRows = append(r.SkippedRows, issue)
}
