package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_ALLOW_DEV_HEADERS", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, StorageDriverFilesystem, cfg.Storage.Driver)
	assert.Equal(t, "xlsx2csv", cfg.Converter.Command)
	assert.Equal(t, 60*time.Second, cfg.Converter.Timeout)
	assert.Equal(t, 250, cfg.Import.CheckpointEvery)
	assert.InDelta(t, 39.7684, cfg.Import.Latitude, 1e-9)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 5*time.Minute, cfg.Worker.LockTTL)
	assert.Equal(t, "canvass", cfg.Redis.ChannelPrefix)
	assert.Equal(t, "canvass", cfg.Database.DBName)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
database:
  host: db.internal
  port: 6543
auth:
  jwt_secret: file-secret
storage:
  driver: s3
  s3:
    bucket: uploads
    endpoint: https://r2.example.com
    use_path_style: true
worker:
  concurrency: 2
`)
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("XLSX_CONVERT_TIMEOUT", "90s")
	t.Setenv("IMPORT_CHECKPOINT_EVERY", "100")
	t.Setenv("HTTP_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, StorageDriverS3, cfg.Storage.Driver)
	assert.Equal(t, "uploads", cfg.Storage.S3.Bucket)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Converter.Timeout)
	assert.Equal(t, 100, cfg.Import.CheckpointEvery)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.CORSOrigins)
}

func TestLoadValidates(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.ErrorContains(t, err, "jwt_secret")

	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORAGE_DRIVER", "s3")
	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "bucket")

	t.Setenv("STORAGE_DRIVER", "ftp")
	_, err = Load(t.TempDir())
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "database: [unterminated")

	_, err := Load(dir)
	assert.ErrorContains(t, err, "failed to read config")
}

func TestOpenObjectStoreFilesystem(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	store, err := StorageConfig{Driver: StorageDriverFilesystem, Root: root}.OpenObjectStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, store)

	_, err = StorageConfig{Driver: "ftp"}.OpenObjectStore(context.Background())
	assert.Error(t, err)
}
