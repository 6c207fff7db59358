package ingestion

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rpattn/canvass/internal/sheetconv"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// TestHelperProcess is not a real test. It stands in for the xlsx2csv binary
// when re-executed by helperConverter.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "no helper arguments")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("helper", flag.ContinueOnError)
	in := fs.String("in", "", "")
	out := fs.String("out", "", "")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(2)
	}

	switch os.Getenv("HELPER_MODE") {
	case "sleep":
		time.Sleep(10 * time.Second)
	case "fail":
		fmt.Fprintln(os.Stderr, "workbook is corrupt")
		os.Exit(3)
	}

	src, err := os.Open(*in)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer src.Close()
	dst, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer dst.Close()
	if err := sheetconv.Convert(src, dst); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func helperConverter(mode string, timeout time.Duration) *SubprocessConverter {
	return &SubprocessConverter{
		Command: os.Args[0],
		Args:    []string{"-test.run=TestHelperProcess", "--"},
		Env:     []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode},
		Timeout: timeout,
	}
}

func sampleWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	rows := [][]any{
		{"VOTER ID", "FIRST NAME", "LAST NAME", "PHONE NUMBER"},
		{"X1", "Ada", "Lovelace", "555-0100"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestSubprocessConverterProducesCSV(t *testing.T) {
	dir := t.TempDir()
	conv := helperConverter("", 20*time.Second)
	conv.TempDir = dir

	out, err := conv.ToCSV(context.Background(), sampleWorkbook(t))
	require.NoError(t, err)
	assert.Equal(t, "VOTER ID,FIRST NAME,LAST NAME,PHONE NUMBER\nX1,Ada,Lovelace,555-0100\n", string(out))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be removed")
}

func TestSubprocessConverterTimeout(t *testing.T) {
	dir := t.TempDir()
	conv := helperConverter("sleep", 200*time.Millisecond)
	conv.TempDir = dir

	_, err := conv.ToCSV(context.Background(), []byte("irrelevant"))
	assert.ErrorIs(t, err, ErrConversionTimeout)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory must be removed after a timeout")
}

func TestSubprocessConverterFailure(t *testing.T) {
	conv := helperConverter("fail", 20*time.Second)

	_, err := conv.ToCSV(context.Background(), []byte("irrelevant"))
	require.ErrorIs(t, err, ErrConversionFailed)
	assert.Contains(t, err.Error(), "workbook is corrupt")
}

func TestSubprocessConverterMissingBinary(t *testing.T) {
	conv := NewSubprocessConverter("definitely-not-a-real-xlsx2csv-binary", time.Second)
	_, err := conv.ToCSV(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrConverterMissing)
}

func TestIsSpreadsheetKey(t *testing.T) {
	assert.True(t, IsSpreadsheetKey("imports/org/VOTERS.XLSX"))
	assert.False(t, IsSpreadsheetKey("imports/org/voters.csv"))
	assert.False(t, IsSpreadsheetKey("imports/org/voters.xls"))
}
