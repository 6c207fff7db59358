// Command xlsx2csv converts the first worksheet of an XLSX workbook to CSV.
//
//	xlsx2csv -in voters.xlsx -out voters.csv
//
// Without -in it reads stdin; without -out it writes stdout.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rpattn/canvass/internal/sheetconv"
)

func main() {
	in := flag.String("in", "", "input .xlsx path (default stdin)")
	out := flag.String("out", "", "output .csv path (default stdout)")
	flag.Parse()

	if err := run(*in, *out); err != nil {
		fmt.Fprintf(os.Stderr, "xlsx2csv: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, outPath string) error {
	var r io.Reader = os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	return sheetconv.Convert(r, w)
}
