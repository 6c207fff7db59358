package events

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherChannel(t *testing.T) {
	tenant := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	p := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	assert.Equal(t, "canvass:imports:11111111-2222-3333-4444-555555555555", p.Channel(tenant))

	p = NewRedisPublisher(nil, "staging")
	assert.Equal(t, "staging:imports:11111111-2222-3333-4444-555555555555", p.Channel(tenant))
}

func TestLogPublisherWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	p := NewLogPublisher(logrus.NewEntry(logger))
	jobID := uuid.New()
	require.NoError(t, p.PublishImport(context.Background(), ImportEvent{Type: ImportCompleted, JobID: jobID}))

	assert.Contains(t, buf.String(), `"event":"import.completed"`)
	assert.Contains(t, buf.String(), jobID.String())
}
