package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/machinepulse/machinepulse/internal/config"
	"github.com/machinepulse/machinepulse/pkg/types"
)

// Column headers of the predictive maintenance dataset.
var defaultCSVColumns = map[types.FieldName]string{
	types.FieldAirTemp:     "Air temperature [K]",
	types.FieldProcessTemp: "Process temperature [K]",
	types.FieldWear:        "Tool wear [min]",
}

const defaultCSVFailure = "Target"

// DefaultCSVColumns returns a copy of the column headers used when a line
// configures no mapping, and the default failure column.
func DefaultCSVColumns() (map[types.FieldName]string, string) {
	cols := make(map[types.FieldName]string, len(defaultCSVColumns))
	for f, c := range defaultCSVColumns {
		cols[f] = c
	}
	return cols, defaultCSVFailure
}

type csvSource struct {
	line    config.Line
	mapping mapping
}

// Fetch re-reads the whole file on every call so edits are picked up on the
// next refresh.
func (s *csvSource) Fetch(_ context.Context) (*Batch, error) {
	b := newBatch(s.line)

	f, err := os.Open(s.line.Path)
	if err != nil {
		b.Err = fmt.Errorf("csv source %q: %w", s.line.ID, err)
		slog.Warn("source: csv open failed", "line", s.line.ID, "path", s.line.Path, "err", err)
		return b, nil
	}
	defer f.Close()

	readings, err := ParseCSV(f, s.mapping.columns, s.mapping.failure)
	if err != nil {
		b.Err = fmt.Errorf("csv source %q: %w", s.line.ID, err)
		slog.Warn("source: csv parse failed", "line", s.line.ID, "path", s.line.Path, "err", err)
		return b, nil
	}
	b.Readings = readings
	return b, nil
}

// ParseCSV decodes a delimited document with a header row into readings.
//
// columns maps each field to its header. Empty or non-numeric cells leave
// the field missing rather than failing the row. A row is flagged with a
// failure when the failure column holds a value greater than zero. Row
// positions become reading indices, starting at 0.
func ParseCSV(r io.Reader, columns map[types.FieldName]string, failureColumn string) ([]types.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []types.Reading{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	fieldPos := make(map[types.FieldName]int, len(columns))
	for f, col := range columns {
		i, ok := pos[col]
		if !ok {
			return nil, fmt.Errorf("column %q for field %q not found in header", col, f)
		}
		fieldPos[f] = i
	}
	failurePos := -1
	if failureColumn != "" {
		if i, ok := pos[failureColumn]; ok {
			failurePos = i
		}
	}

	var readings []types.Reading
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(readings)+1, err)
		}

		values := make(map[types.FieldName]float64, len(fieldPos))
		for f, i := range fieldPos {
			if v, ok := cell(rec, i); ok {
				values[f] = v
			}
		}
		var failure bool
		if v, ok := cell(rec, failurePos); ok {
			failure = v > 0
		}
		readings = append(readings, types.Reading{Index: len(readings), Values: values, HasFailure: failure})
	}
	if readings == nil {
		readings = []types.Reading{}
	}
	return readings, nil
}

// cell parses column i of rec as a number. NaN and ±Inf are treated as
// missing.
func cell(rec []string, i int) (float64, bool) {
	if i < 0 || i >= len(rec) {
		return 0, false
	}
	s := strings.TrimSpace(rec[i])
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}
