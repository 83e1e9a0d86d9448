// Package linesource loads statement text files into their line sequences.
package linesource

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lox/itau-fatura-parser/internal/dates"
)

// Statement is one loaded statement file: its raw lines in file order and
// the reference period inferred from its content and filename.
type Statement struct {
	Path  string
	Lines []string
	Ref   dates.RefPeriod
}

// ReadLines reads a statement text file into its raw lines. Lines come back
// untouched; normalization happens downstream so positions stay aligned with
// the file.
func ReadLines(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("opening statement: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading statement: %w", err)
	}
	return lines, nil
}

// Load reads a statement file and infers its reference period. The period
// prefers an explicit marker in the text, then a YYYY-MM stamp in the
// filename, then now.
func Load(filename string, now time.Time) (Statement, error) {
	lines, err := ReadLines(filename)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Path:  filename,
		Lines: lines,
		Ref:   dates.InferRefPeriod(lines, filepath.Base(filename), now),
	}, nil
}
