package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		raw    string
		want   Field
		mapped bool
	}{
		{raw: "RESIDENTIAL ADDRESS, LINE 1", want: FieldAddress, mapped: true},
		{raw: "RESIDENTIAL ADDRESS", want: FieldAddress, mapped: true},
		{raw: "PHONE NUMBER", want: FieldPhone, mapped: true},
		{raw: "RANDOM UNKNOWN COLUMN", mapped: false},
		{raw: `"Voter ID"`, want: FieldExternalID, mapped: true},
		{raw: "  first_name ", want: FieldFirstName, mapped: true},
		{raw: "Last-Name", want: FieldLastName, mapped: true},
		{raw: "'Zip Code'", want: FieldZip, mapped: true},
		{raw: "House #", want: FieldHouseNumber, mapped: false},
		{raw: "House No.", want: FieldHouseNumber, mapped: true},
		{raw: "\ufeffVOTER ID", want: FieldExternalID, mapped: true},
		{raw: "", mapped: false},
		{raw: ", PHONE", mapped: false},
	}

	for _, tc := range cases {
		got, ok := NormalizeHeader(tc.raw)
		if !tc.mapped {
			assert.False(t, ok, "header %q should not map", tc.raw)
			continue
		}
		assert.True(t, ok, "header %q should map", tc.raw)
		assert.Equal(t, tc.want, got, "header %q", tc.raw)
	}
}

func TestSynonymTablesAreDisjoint(t *testing.T) {
	owner := map[string]Field{}
	for field, tokens := range synonyms {
		for _, token := range tokens {
			if prev, dup := owner[token]; dup {
				t.Fatalf("token %q listed for both %s and %s", token, prev, field)
			}
			owner[token] = field
			assert.Equal(t, token, compactToken(token), "synonym %q must already be compacted", token)
		}
	}
	for _, field := range Fields {
		assert.NotEmpty(t, synonyms[field], "field %s has no synonyms", field)
	}
}

func TestBuildFieldMap(t *testing.T) {
	fm := BuildFieldMap([]string{"VOTER ID", "FIRST NAME", "Favourite Colour", "LAST NAME", "Phone", "Telephone"})

	assert.Equal(t, []Field{FieldExternalID, FieldFirstName, "", FieldLastName, FieldPhone, ""}, fm.Columns)
	assert.Equal(t, []string{"Favourite Colour", "Telephone"}, fm.Ignored)
	assert.True(t, fm.Has(FieldPhone))
	assert.False(t, fm.Has(FieldCity))
}
