package ingestion

import (
	"strings"
	"unicode"
)

// Field is a canonical voter attribute a source column can map to.
type Field string

const (
	FieldExternalID      Field = "external_id"
	FieldFirstName       Field = "first_name"
	FieldMiddleName      Field = "middle_name"
	FieldLastName        Field = "last_name"
	FieldSuffix          Field = "suffix"
	FieldAge             Field = "age"
	FieldGender          Field = "gender"
	FieldRace            Field = "race"
	FieldParty           Field = "party"
	FieldPhone           Field = "phone"
	FieldEmail           Field = "email"
	FieldAddress         Field = "address"
	FieldHouseNumber     Field = "house_number"
	FieldHouseFraction   Field = "house_fraction"
	FieldStreetDirection Field = "street_direction"
	FieldStreetName      Field = "street_name"
	FieldUnit            Field = "unit"
	FieldCity            Field = "city"
	FieldState           Field = "state"
	FieldZip             Field = "zip"
	FieldLatitude        Field = "latitude"
	FieldLongitude       Field = "longitude"
)

// Fields lists every canonical field in a stable order.
var Fields = []Field{
	FieldExternalID, FieldFirstName, FieldMiddleName, FieldLastName, FieldSuffix,
	FieldAge, FieldGender, FieldRace, FieldParty, FieldPhone, FieldEmail,
	FieldAddress, FieldHouseNumber, FieldHouseFraction, FieldStreetDirection, FieldStreetName,
	FieldUnit, FieldCity, FieldState, FieldZip, FieldLatitude, FieldLongitude,
}

// synonyms holds the compacted (upper-case, alphanumeric only) header tokens
// accepted for each field. Matching is exact against these sets.
var synonyms = map[Field][]string{
	FieldExternalID:      {"VOTERID", "VOTERIDNUMBER", "VOTERNUMBER", "EXTERNALID", "STATEVOTERID", "SOSVOTERID", "REGISTRANTID", "REGISTRATIONNUMBER", "VANID", "ID"},
	FieldFirstName:       {"FIRSTNAME", "FIRST", "FNAME", "GIVENNAME"},
	FieldMiddleName:      {"MIDDLENAME", "MIDDLE", "MNAME", "MIDDLEINITIAL"},
	FieldLastName:        {"LASTNAME", "LAST", "LNAME", "SURNAME", "FAMILYNAME"},
	FieldSuffix:          {"SUFFIX", "NAMESUFFIX"},
	FieldAge:             {"AGE"},
	FieldGender:          {"GENDER", "SEX"},
	FieldRace:            {"RACE", "ETHNICITY"},
	FieldParty:           {"PARTY", "PARTYAFFILIATION", "PARTYCODE", "POLITICALPARTY"},
	FieldPhone:           {"PHONE", "PHONENUMBER", "TELEPHONE", "TELEPHONENUMBER", "CELLPHONE", "MOBILE", "PRIMARYPHONE"},
	FieldEmail:           {"EMAIL", "EMAILADDRESS"},
	FieldAddress:         {"ADDRESS", "RESIDENTIALADDRESS", "STREETADDRESS", "ADDRESS1", "ADDRESSLINE1"},
	FieldHouseNumber:     {"HOUSENUMBER", "HOUSENO", "STREETNUMBER", "RESIDENTIALHOUSENUMBER"},
	FieldHouseFraction:   {"HOUSEFRACTION", "FRACTION", "HOUSENUMBERFRACTION"},
	FieldStreetDirection: {"STREETDIRECTION", "PREDIRECTION", "DIRECTION", "STREETDIR"},
	FieldStreetName:      {"STREETNAME", "STREET", "RESIDENTIALSTREETNAME"},
	FieldUnit:            {"UNIT", "APT", "APARTMENT", "UNITNUMBER", "APTNUMBER"},
	FieldCity:            {"CITY", "RESIDENTIALCITY", "TOWN"},
	FieldState:           {"STATE", "ST", "RESIDENTIALSTATE"},
	FieldZip:             {"ZIP", "ZIPCODE", "ZIP5", "POSTALCODE", "RESIDENTIALZIP", "RESIDENTIALZIPCODE"},
	FieldLatitude:        {"LATITUDE", "LAT"},
	FieldLongitude:       {"LONGITUDE", "LNG", "LON", "LONG"},
}

var headerLookup = buildHeaderLookup()

func buildHeaderLookup() map[string]Field {
	lookup := make(map[string]Field)
	for field, tokens := range synonyms {
		for _, token := range tokens {
			lookup[token] = field
		}
	}
	return lookup
}

// NormalizeHeader maps a raw source column header to a canonical field.
// Only the text before the first comma is considered. It reports false when
// the header matches no synonym.
func NormalizeHeader(raw string) (Field, bool) {
	token := cleanHeader(raw)
	if token == "" {
		return "", false
	}
	field, ok := headerLookup[compactToken(token)]
	return field, ok
}

// cleanHeader keeps the prefix before the first comma, strips quotes, trims
// and upper-cases it.
func cleanHeader(raw string) string {
	if idx := strings.IndexByte(raw, ','); idx >= 0 {
		raw = raw[:idx]
	}
	raw = strings.NewReplacer(`"`, "", `'`, "").Replace(raw)
	return strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
}

func compactToken(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FieldMap assigns a canonical field to each column position of a header row.
type FieldMap struct {
	// Columns is parallel to the header row; an empty Field means the column is ignored.
	Columns []Field
	// Ignored lists the raw headers that matched nothing, in column order.
	Ignored []string
}

// BuildFieldMap normalizes every header. When two columns map to the same
// field the first one wins and later ones are reported as ignored.
func BuildFieldMap(headers []string) FieldMap {
	fm := FieldMap{Columns: make([]Field, len(headers))}
	seen := make(map[Field]bool)
	for i, header := range headers {
		field, ok := NormalizeHeader(header)
		if !ok || seen[field] {
			if trimmed := cleanText(header); trimmed != "" {
				fm.Ignored = append(fm.Ignored, trimmed)
			}
			continue
		}
		seen[field] = true
		fm.Columns[i] = field
	}
	return fm
}

// Has reports whether any column maps to field.
func (fm FieldMap) Has(field Field) bool {
	for _, f := range fm.Columns {
		if f == field {
			return true
		}
	}
	return false
}
