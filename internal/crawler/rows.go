package crawler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// headerRows is the number of table rows preceding the first day.
const headerRows = 2

// RowShapeError reports a data row that does not cover the schema.
type RowShapeError struct {
	Row   int
	Cells []string
	Want  int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("%v: row %d has %d cells, want at least %d", ErrRowShapeMismatch, e.Row, len(e.Cells), e.Want)
}

func (e *RowShapeError) Unwrap() error {
	return ErrRowShapeMismatch
}

// ExtractRecords maps the month's data rows through schema. The page lists
// days newest first, so rows are walked backwards and the result starts at
// day 1. Rows beyond the month's day count are ignored.
func ExtractRecords(table *goquery.Selection, schema ColumnSchema, month MonthKey) ([]Record, error) {
	if !schema.Has(DateColumn) {
		return nil, fmt.Errorf("%w: header has no %s column", ErrMalformedDocument, DateColumn)
	}
	rows := table.Find("tr")
	last := min(rows.Length(), month.Days()+headerRows)

	records := make([]Record, 0, max(last-headerRows, 0))
	for i := last - 1; i >= headerRows; i-- {
		rec, err := extractRow(rows.Eq(i), i, schema, month)
		if err != nil {
			return nil, err
		}
		if err := ValidateRecord(rec); err != nil {
			return nil, fmt.Errorf("row %d (%s): %w", i, rec.Timestamp, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func extractRow(row *goquery.Selection, index int, schema ColumnSchema, month MonthKey) (Record, error) {
	var cells []string
	row.Children().Filter("th,td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	if len(cells) < schema.Width {
		return Record{}, &RowShapeError{Row: index, Cells: cells, Want: schema.Width}
	}

	fields := make(map[string]string, len(schema.Columns))
	for _, col := range schema.Columns {
		fields[col.Name] = cells[col.Index]
	}
	ts, err := dayTimestamp(month, fields[DateColumn])
	if err != nil {
		return Record{}, fmt.Errorf("%w: row %d: %v", ErrRowShapeMismatch, index, err)
	}
	return Record{Timestamp: ts, Fields: fields}, nil
}

// dayTimestamp turns a MM/DD date cell into YYYY-MM-DD for month.
func dayTimestamp(month MonthKey, cell string) (string, error) {
	_, dayPart, ok := strings.Cut(cell, "/")
	if !ok {
		return "", fmt.Errorf("date cell %q is not MM/DD", cell)
	}
	day, err := strconv.Atoi(strings.TrimSpace(dayPart))
	if err != nil {
		return "", fmt.Errorf("date cell %q: %w", cell, err)
	}
	if day < 1 || day > month.Days() {
		return "", fmt.Errorf("date cell %q: day out of range for %s", cell, month)
	}
	return fmt.Sprintf("%s-%02d", month, day), nil
}
