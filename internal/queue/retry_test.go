package queue

import (
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	ceiling := time.Minute
	for attempts, want := range map[int]time.Duration{
		-1:  0,
		0:   0,
		1:   time.Second,
		2:   2 * time.Second,
		4:   8 * time.Second,
		9:   time.Minute,
		500: time.Minute,
	} {
		assert.Equal(t, want, retryDelay(attempts, ceiling), "attempts=%d", attempts)
	}
}

func TestSpreadStaysInRange(t *testing.T) {
	t.Parallel()

	src := rand.New(rand.NewSource(7))
	limit := 250 * time.Millisecond
	for i := 0; i < 50; i++ {
		got := spread(src, limit)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.LessOrEqual(t, got, limit)
	}
	assert.Zero(t, spread(nil, limit))
	assert.Zero(t, spread(src, 0))
}

func TestErrorText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", ErrorText(nil, 10))
	assert.Equal(t, "", ErrorText(errors.New("boom"), 0))
	assert.Equal(t, "boom", ErrorText(errors.New("boom"), 10))
	assert.Equal(t, "boo", ErrorText(errors.New("boom"), 3))
	// "é" is two bytes; a cut inside it drops the partial rune.
	assert.Equal(t, "a", ErrorText(errors.New("aé"), 2))
	assert.Equal(t, "bad � row", ErrorText(errors.New("bad \xff\x00 row"), 64))
	assert.Len(t, ErrorText(errors.New(strings.Repeat("x", 5000)), 2048), 2048)
}

func TestPanicText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "boom", panicText(errors.New("boom")))
	assert.Equal(t, "bad row", panicText("bad row"))
	assert.Equal(t, "42", panicText(42))
}
