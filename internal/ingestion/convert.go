package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrConversionTimeout is returned when the converter exceeds its time budget.
	ErrConversionTimeout = errors.New("spreadsheet conversion timed out")
	// ErrConverterMissing is returned when the converter binary cannot be found.
	ErrConverterMissing = errors.New("spreadsheet converter not available")
	// ErrConversionFailed wraps a non-zero converter exit.
	ErrConversionFailed = errors.New("spreadsheet conversion failed")
)

// DefaultConvertTimeout bounds one spreadsheet conversion.
const DefaultConvertTimeout = 60 * time.Second

const maxStderrBytes = 4096

// Converter turns spreadsheet bytes into comma-delimited text.
type Converter interface {
	ToCSV(ctx context.Context, data []byte) ([]byte, error)
}

// IsSpreadsheetKey reports whether a stored object key names an XLSX workbook.
func IsSpreadsheetKey(key string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(key)), ".xlsx")
}

// SubprocessConverter runs an external converter binary in a private scratch
// directory with a hard timeout. The binary is invoked as
// `Command Args... -in <input.xlsx> -out <output.csv>`.
type SubprocessConverter struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
	// TempDir is the parent for scratch directories; empty uses os.TempDir.
	TempDir string
}

// NewSubprocessConverter returns a converter invoking command with the default timeout.
func NewSubprocessConverter(command string, timeout time.Duration) *SubprocessConverter {
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}
	return &SubprocessConverter{Command: command, Timeout: timeout}
}

func (c *SubprocessConverter) ToCSV(ctx context.Context, data []byte) ([]byte, error) {
	if c.Command == "" {
		return nil, ErrConverterMissing
	}
	if _, err := exec.LookPath(c.Command); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConverterMissing, err)
	}

	dir, err := os.MkdirTemp(c.TempDir, "xlsx-convert-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	inPath := filepath.Join(dir, "input.xlsx")
	outPath := filepath.Join(dir, "output.csv")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write conversion input: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultConvertTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string{}, c.Args...), "-in", inPath, "-out", outPath)
	cmd := exec.CommandContext(runCtx, c.Command, args...)
	cmd.Dir = dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxStderrBytes}

	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrConversionTimeout, timeout)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrConverterMissing, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", ErrConversionFailed, msg)
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: missing output: %v", ErrConversionFailed, err)
	}
	return out, nil
}

// limitedWriter keeps at most max bytes and silently drops the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if remaining := w.max - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
