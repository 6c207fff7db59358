package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "imports/a/b/voters.csv", []byte("VOTER ID\n1\n"), "text/csv"))

	data, err := store.Get(ctx, "imports/a/b/voters.csv")
	require.NoError(t, err)
	assert.Equal(t, "VOTER ID\n1\n", string(data))
}

func TestFilesystemStoreMissingObject(t *testing.T) {
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "imports/nope.csv")
	assert.ErrorIs(t, err, ErrNotAccessible)

	_, err = store.Get(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotAccessible)
}

func TestFilesystemStoreContainsTraversal(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystemStore(root)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "../../escape.csv", []byte("x"), ""))
	data, err := store.Get(context.Background(), "escape.csv")
	require.NoError(t, err, "traversal segments are cleaned to stay under the root")
	assert.Equal(t, "x", string(data))
}

func TestImportKey(t *testing.T) {
	tenant := uuid.New()
	key := ImportKey(tenant, `C:\Users\me\voters.xlsx`)
	assert.True(t, strings.HasPrefix(key, "imports/"+tenant.String()+"/"))
	assert.True(t, strings.HasSuffix(key, "/voters.xlsx"))

	assert.True(t, strings.HasSuffix(ImportKey(tenant, ""), "/upload"))
}

func TestTenantOwnsKey(t *testing.T) {
	tenant, other := uuid.New(), uuid.New()
	prefix := "imports/" + tenant.String() + "/"

	assert.True(t, TenantOwnsKey(tenant, ImportKey(tenant, "voters.csv")))
	assert.True(t, TenantOwnsKey(tenant, ImportKey(tenant, "..")))
	assert.True(t, TenantOwnsKey(tenant, prefix+"legacy.csv"))

	for _, key := range []string{
		ImportKey(other, "voters.csv"),
		prefix,
		prefix + "../" + other.String() + "/a/voters.csv",
		prefix + "a//voters.csv",
		"/" + prefix + "a/voters.csv",
		prefix + `a\..\voters.csv`,
		"voters.csv",
		"",
	} {
		assert.False(t, TenantOwnsKey(tenant, key), key)
	}
	assert.False(t, TenantOwnsKey(uuid.Nil, "imports/"+uuid.Nil.String()+"/a/voters.csv"))
}
