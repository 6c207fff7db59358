package ingestion

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// JobName is the queue job name for voter imports.
const JobName = "voter_import"

// Payload is the queue message body for one import job. FileKey wins over
// inline Voters when both are present.
type Payload struct {
	JobID    uuid.UUID        `json:"jobId"`
	TenantID uuid.UUID        `json:"tenantId"`
	UserID   uuid.UUID        `json:"userId"`
	Voters   []map[string]any `json:"voters,omitempty"`
	FileKey  string           `json:"fileKey,omitempty"`
}

// Validate checks the identifiers and that some row source is present.
func (p Payload) Validate() error {
	if p.JobID == uuid.Nil {
		return fmt.Errorf("jobId is required")
	}
	if p.TenantID == uuid.Nil {
		return fmt.Errorf("tenantId is required")
	}
	if strings.TrimSpace(p.FileKey) == "" && len(p.Voters) == 0 {
		return fmt.Errorf("either voters or fileKey is required")
	}
	return nil
}

// DecodePayload parses a queue message body.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode import payload: %w", err)
	}
	return p, nil
}

var inlineKeyLookup = buildInlineKeyLookup()

func buildInlineKeyLookup() map[string]Field {
	lookup := make(map[string]Field, len(Fields)*2)
	for _, field := range Fields {
		lookup[string(field)] = field
		lookup[snakeToCamel(string(field))] = field
	}
	return lookup
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}

// MapInlineRow projects a JSON row onto the canonical fields. Keys are matched
// as snake_case, then camelCase, then through the header normalizer. Keys
// that match nothing are returned in sorted order.
func MapInlineRow(raw map[string]any) (MappedRow, []string) {
	var (
		row     MappedRow
		ignored []string
	)

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	assigned := make(map[Field]bool)
	// Exact snake/camel matches take precedence over synonym matches.
	for _, key := range keys {
		if field, ok := inlineKeyLookup[key]; ok {
			row.Set(field, stringifyValue(raw[key]))
			assigned[field] = true
		}
	}
	for _, key := range keys {
		if _, ok := inlineKeyLookup[key]; ok {
			continue
		}
		field, ok := NormalizeHeader(key)
		if !ok {
			if cleaned := cleanText(key); cleaned != "" {
				ignored = append(ignored, cleaned)
			}
			continue
		}
		if assigned[field] {
			continue
		}
		row.Set(field, stringifyValue(raw[key]))
		assigned[field] = true
	}

	return row, ignored
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
