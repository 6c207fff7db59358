// Package storage reads and writes import files in an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotAccessible is returned when an object does not exist or cannot be read.
var ErrNotAccessible = errors.New("object not accessible")

// ObjectStore is the minimal get/put surface the import pipeline needs.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ImportKey builds the object key for an uploaded import file.
func ImportKey(tenantID uuid.UUID, fileName string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	if name == "." || name == ".." || name == "/" || name == "" {
		name = "upload"
	}
	return fmt.Sprintf("imports/%s/%s/%s", tenantID, uuid.New(), name)
}

// TenantOwnsKey reports whether key lies under the tenant's import prefix.
// Keys that climb out of the prefix with ".." segments do not count.
func TenantOwnsKey(tenantID uuid.UUID, key string) bool {
	if tenantID == uuid.Nil {
		return false
	}
	if strings.Contains(key, `\`) || path.Clean("/"+key) != "/"+key {
		return false
	}
	prefix := fmt.Sprintf("imports/%s/", tenantID)
	return strings.HasPrefix(key, prefix) && len(key) > len(prefix)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", ErrNotAccessible)
	}
	return nil
}
