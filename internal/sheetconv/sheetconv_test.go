package sheetconv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheets map[string][][]any, order []string) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestConvertFirstSheetOnly(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Voters": {
			{"VOTER ID", "FIRST NAME", "RESIDENTIAL ADDRESS, LINE 1"},
			{"V1", "Ada", "12 Main St, Apt 4"},
			{"V2", "Grace"},
		},
		"Notes": {
			{"ignore me"},
		},
	}, []string{"Voters", "Notes"})

	var out bytes.Buffer
	require.NoError(t, Convert(bytes.NewReader(data), &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `VOTER ID,FIRST NAME,"RESIDENTIAL ADDRESS, LINE 1"`, lines[0])
	assert.Equal(t, `V1,Ada,"12 Main St, Apt 4"`, lines[1])
	assert.Equal(t, `V2,Grace,`, lines[2])
	assert.NotContains(t, out.String(), "ignore me")
}

func TestConvertNumericCells(t *testing.T) {
	data := buildWorkbook(t, map[string][][]any{
		"Sheet": {
			{"VOTER ID", "AGE"},
			{123456, 42},
		},
	}, []string{"Sheet"})

	var out bytes.Buffer
	require.NoError(t, Convert(bytes.NewReader(data), &out))
	assert.Equal(t, "VOTER ID,AGE\n123456,42\n", out.String())
}

func TestConvertRejectsGarbage(t *testing.T) {
	var out bytes.Buffer
	err := Convert(strings.NewReader("not a workbook"), &out)
	assert.Error(t, err)
}
