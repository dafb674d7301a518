package crawler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// tableSelector matches the page's sole data table.
const tableSelector = `table[border="0"]`

const (
	// DateColumn carries the MM/DD day of each row.
	DateColumn = "Date"
	// WindDirectionColumn is the composite wind direction column.
	WindDirectionColumn = "Wind(km/h)Dir."
	// HumidityColumn is the average relative humidity column.
	HumidityColumn = "Hr.Avg(%)"

	// MaxColumns is the largest schema the whitelist can produce.
	MaxColumns = 11
	// minUsableColumns is the coarse "no usable data" threshold: a schema
	// this short carries little beyond the date.
	minUsableColumns = 3
)

var (
	columnWhitelist = map[string]struct{}{
		DateColumn:          {},
		"Temperature(C)Max": {},
		"Temperature(C)Min": {},
		"Temperature(C)Avg": {},
		"TdAvg(C)":          {},
		HumidityColumn:      {},
		WindDirectionColumn: {},
		"Wind(km/h)Int.":    {},
		"Pres.s.lev(Hp)":    {},
		"Prec.(mm)":         {},
		"VisKm":             {},
	}
	temperatureSubLabels = map[string]struct{}{"Max": {}, "Min": {}, "Avg": {}}
	windSubLabels        = map[string]struct{}{"Dir.": {}, "Int.": {}}
)

// LocateTable finds the observation table in doc.
//
// ErrNoTableFound means the month genuinely has no data. ErrMalformedDocument
// means the document itself cannot be trusted and the month must be retried
// by a later run.
func LocateTable(doc *goquery.Document) (*goquery.Selection, error) {
	if doc == nil || doc.Selection == nil {
		return nil, fmt.Errorf("%w: nil document", ErrMalformedDocument)
	}
	body := doc.Find("body")
	if body.Length() == 0 || (body.Children().Length() == 0 && strings.TrimSpace(body.Text()) == "") {
		return nil, fmt.Errorf("%w: empty document body", ErrMalformedDocument)
	}
	tables := doc.Find(tableSelector)
	if tables.Length() == 0 {
		return nil, ErrNoTableFound
	}
	table := tables.First()
	if table.Find("tr").Length() < 2 {
		return nil, fmt.Errorf("%w: table has no two-row header", ErrMalformedDocument)
	}
	return table, nil
}

// Column is a recognized column and the cell position it reads from.
type Column struct {
	Name  string
	Index int
}

// ColumnSchema is the ordered set of recognized columns for one month.
type ColumnSchema struct {
	Columns []Column
	// Width is the number of cells a data row needs to cover every
	// recognized column.
	Width int
}

// Len returns the number of recognized columns.
func (s ColumnSchema) Len() int {
	return len(s.Columns)
}

// Names returns the recognized column names in header order.
func (s ColumnSchema) Names() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Has reports whether name is part of the schema.
func (s ColumnSchema) Has(name string) bool {
	for _, c := range s.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Usable reports whether the schema carries enough columns to be worth
// writing. Short schemas are treated like a missing table.
func (s ColumnSchema) Usable() bool {
	return len(s.Columns) > minUsableColumns
}

// headerLeaf is one data column as described by the two header rows.
type headerLeaf struct {
	group string
	sub   string
}

// ResolveSchema derives the recognized columns from the table's two-row
// header. It never fails; an unusable header yields a short schema.
func ResolveSchema(table *goquery.Selection) ColumnSchema {
	var schema ColumnSchema
	for i, leaf := range headerLeaves(table) {
		name, ok := resolveLeaf(leaf)
		if !ok {
			continue
		}
		schema.Columns = append(schema.Columns, Column{Name: name, Index: i})
		schema.Width = i + 1
	}
	return schema
}

// headerLeaves flattens the header into one leaf per data cell. A
// Temperature or Wind group, or any cell with an explicit colspan, claims
// labels from the second row; every other top cell is a column on its own.
// Without a colspan a group claims the run of second-row labels it knows.
func headerLeaves(table *goquery.Selection) []headerLeaf {
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return nil
	}
	var subs []string
	rows.Eq(1).Children().Filter("th,td").Each(func(_ int, cell *goquery.Selection) {
		subs = append(subs, headerLabel(cell))
	})

	var leaves []headerLeaf
	next := 0
	rows.Eq(0).Children().Filter("th,td").Each(func(_ int, cell *goquery.Selection) {
		group := headerLabel(cell)
		span := intAttr(cell, "colspan", 1)
		known := groupSubLabels(group)
		if intAttr(cell, "rowspan", 1) >= 2 || (span == 1 && known == nil) {
			for k := 0; k < span; k++ {
				leaves = append(leaves, headerLeaf{group: group})
			}
			return
		}
		if span > 1 {
			for k := 0; k < span; k++ {
				leaf := headerLeaf{group: group}
				if next < len(subs) {
					leaf.sub = subs[next]
					next++
				}
				leaves = append(leaves, leaf)
			}
			return
		}
		start := next
		for next < len(subs) {
			if _, ok := known[subs[next]]; !ok {
				break
			}
			leaves = append(leaves, headerLeaf{group: group, sub: subs[next]})
			next++
		}
		if next == start {
			leaves = append(leaves, headerLeaf{group: group})
		}
	})
	return leaves
}

// groupSubLabels returns the sub-labels a composite group accepts, or nil
// for a simple column.
func groupSubLabels(group string) map[string]struct{} {
	switch {
	case strings.Contains(group, "Temperature"):
		return temperatureSubLabels
	case strings.Contains(group, "Wind"):
		return windSubLabels
	}
	return nil
}

func resolveLeaf(leaf headerLeaf) (string, bool) {
	if known := groupSubLabels(leaf.group); known != nil {
		if _, ok := known[leaf.sub]; ok {
			return leaf.group + leaf.sub, true
		}
		return "", false
	}
	name := leaf.group + leaf.sub
	if _, ok := columnWhitelist[name]; ok {
		return name, true
	}
	return "", false
}

// headerLabel collapses all whitespace, so "Temperature<br>(C)" reads as
// "Temperature(C)".
func headerLabel(cell *goquery.Selection) string {
	return strings.Join(strings.Fields(cell.Text()), "")
}

func intAttr(cell *goquery.Selection, name string, fallback int) int {
	raw, ok := cell.Attr(name)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
