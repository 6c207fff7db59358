package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// ErrEmptyDocument is returned when a document has no header line.
var ErrEmptyDocument = errors.New("document has no header row")

// MappedRow is one source row projected onto the canonical fields. Empty
// strings mean the source did not supply a value.
type MappedRow struct {
	ExternalID      string
	FirstName       string
	MiddleName      string
	LastName        string
	Suffix          string
	Age             string
	Gender          string
	Race            string
	Party           string
	Phone           string
	Email           string
	Address         string
	HouseNumber     string
	HouseFraction   string
	StreetDirection string
	StreetName      string
	Unit            string
	City            string
	State           string
	Zip             string
	Latitude        string
	Longitude       string
}

func (r *MappedRow) ref(field Field) *string {
	switch field {
	case FieldExternalID:
		return &r.ExternalID
	case FieldFirstName:
		return &r.FirstName
	case FieldMiddleName:
		return &r.MiddleName
	case FieldLastName:
		return &r.LastName
	case FieldSuffix:
		return &r.Suffix
	case FieldAge:
		return &r.Age
	case FieldGender:
		return &r.Gender
	case FieldRace:
		return &r.Race
	case FieldParty:
		return &r.Party
	case FieldPhone:
		return &r.Phone
	case FieldEmail:
		return &r.Email
	case FieldAddress:
		return &r.Address
	case FieldHouseNumber:
		return &r.HouseNumber
	case FieldHouseFraction:
		return &r.HouseFraction
	case FieldStreetDirection:
		return &r.StreetDirection
	case FieldStreetName:
		return &r.StreetName
	case FieldUnit:
		return &r.Unit
	case FieldCity:
		return &r.City
	case FieldState:
		return &r.State
	case FieldZip:
		return &r.Zip
	case FieldLatitude:
		return &r.Latitude
	case FieldLongitude:
		return &r.Longitude
	}
	return nil
}

// Set assigns a trimmed value to field. Unknown fields are ignored.
func (r *MappedRow) Set(field Field, value string) {
	if p := r.ref(field); p != nil {
		*p = cleanText(value)
	}
}

// cleanText trims value and makes it storable as Postgres text: NUL bytes are
// dropped and invalid UTF-8 sequences become U+FFFD.
func cleanText(value string) string {
	value = strings.ReplaceAll(value, "\x00", "")
	return strings.TrimSpace(strings.ToValidUTF8(value, "\uFFFD"))
}

// Get returns the value held for field.
func (r MappedRow) Get(field Field) string {
	if p := r.ref(field); p != nil {
		return *p
	}
	return ""
}

// ParsedDocument is the result of parsing a delimited text document.
type ParsedDocument struct {
	Headers  []string
	FieldMap FieldMap
	Rows     []MappedRow
}

// ParseLine splits one line of comma-delimited text. Quoted fields may
// contain commas and doubled quotes are literal quote characters.
func ParseLine(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	record, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse line: %w", err)
	}
	return record, nil
}

// ParseDocument splits data into lines, drops blank ones, maps the first line
// through the header normalizer and projects every following line onto it.
func ParseDocument(data []byte) (ParsedDocument, error) {
	data = bytes.TrimPrefix(data, byteOrderMark)

	lines := splitLines(string(data))
	if len(lines) == 0 {
		return ParsedDocument{}, ErrEmptyDocument
	}

	headers, err := ParseLine(lines[0])
	if err != nil {
		return ParsedDocument{}, fmt.Errorf("header row: %w", err)
	}

	doc := ParsedDocument{
		Headers:  headers,
		FieldMap: BuildFieldMap(headers),
		Rows:     make([]MappedRow, 0, len(lines)-1),
	}

	for i, line := range lines[1:] {
		values, err := ParseLine(line)
		if err != nil {
			return ParsedDocument{}, fmt.Errorf("row %d: %w", i+2, err)
		}
		doc.Rows = append(doc.Rows, doc.FieldMap.Apply(values))
	}

	return doc, nil
}

// Apply projects positional values onto a MappedRow. Values beyond the
// header width and values of ignored columns are discarded.
func (fm FieldMap) Apply(values []string) MappedRow {
	var row MappedRow
	for i, field := range fm.Columns {
		if field == "" || i >= len(values) {
			continue
		}
		row.Set(field, values[i])
	}
	return row
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
