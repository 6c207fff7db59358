package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineHonoursQuoting(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{line: `a,b,c`, want: []string{"a", "b", "c"}},
		{line: `"Smith, John",42`, want: []string{"Smith, John", "42"}},
		{line: `"He said ""hi""",x`, want: []string{`He said "hi"`, "x"}},
		{line: `a,,c`, want: []string{"a", "", "c"}},
		{line: `a, b`, want: []string{"a", "b"}},
		{line: ``, want: []string{}},
	}

	for _, tc := range cases {
		got, err := ParseLine(tc.line)
		require.NoError(t, err, "line %q", tc.line)
		assert.Equal(t, tc.want, got, "line %q", tc.line)
	}
}

func TestParseDocumentMapsRowsPositionally(t *testing.T) {
	data := "\xEF\xBB\xBFVOTER ID,FIRST NAME,LAST NAME,\"RESIDENTIAL ADDRESS, LINE 1\",SHOE SIZE,PHONE NUMBER\r\n" +
		"V1,Ada,Lovelace,\"12 Main St, Apt 4\",9,555-0100\r\n" +
		"\r\n" +
		"V2,Grace,Hopper,,11\n" +
		"   \n"

	doc, err := ParseDocument([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"SHOE SIZE"}, doc.FieldMap.Ignored)
	require.Len(t, doc.Rows, 2)

	first := doc.Rows[0]
	assert.Equal(t, "V1", first.ExternalID)
	assert.Equal(t, "Ada", first.FirstName)
	assert.Equal(t, "Lovelace", first.LastName)
	assert.Equal(t, "12 Main St, Apt 4", first.Address)
	assert.Equal(t, "555-0100", first.Phone)

	second := doc.Rows[1]
	assert.Equal(t, "V2", second.ExternalID)
	assert.Equal(t, "", second.Address)
	assert.Equal(t, "", second.Phone, "short rows leave trailing fields empty")
}

func TestParseDocumentEmpty(t *testing.T) {
	_, err := ParseDocument([]byte("\n\n  \n"))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestMappedRowGetSet(t *testing.T) {
	var row MappedRow
	row.Set(FieldCity, "  Springfield ")
	row.Set(Field("unknown"), "ignored")

	assert.Equal(t, "Springfield", row.Get(FieldCity))
	assert.Equal(t, "", row.Get(Field("unknown")))
}
