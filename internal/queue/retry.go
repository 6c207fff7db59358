package queue

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidConfig wraps every construction or argument error from this package.
	ErrInvalidConfig = errors.New("invalid queue configuration")
	// ErrUnknownJob is recorded when a claimed message has no registered handler.
	ErrUnknownJob = errors.New("no handler registered for job")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// maxDoublings keeps the shifted delay well inside int64.
const maxDoublings = 30

// retryDelay doubles from one second per failed attempt and stops at ceiling.
func retryDelay(attempts int, ceiling time.Duration) time.Duration {
	switch {
	case attempts <= 0:
		return 0
	case attempts > maxDoublings:
		return ceiling
	}
	if d := time.Second << (attempts - 1); d < ceiling {
		return d
	}
	return ceiling
}

// spread picks a uniform extra delay in [0, limit]; no source means none.
func spread(src *rand.Rand, limit time.Duration) time.Duration {
	if src == nil || limit <= 0 {
		return 0
	}
	return time.Duration(src.Int63n(int64(limit) + 1)) //nolint:gosec
}

// ErrorText renders err for a text column: NUL bytes are dropped, invalid
// UTF-8 becomes U+FFFD and the result is cut to limit bytes on a rune
// boundary.
func ErrorText(err error, limit int) string {
	if err == nil || limit <= 0 {
		return ""
	}
	text := strings.ToValidUTF8(strings.ReplaceAll(err.Error(), "\x00", ""), "\uFFFD")
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func panicText(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(v)
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
