package crawler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// fullHeader mirrors the gsynres daily summary header for a station that
// reports temperature, wind, pressure, precipitation and visibility.
const fullHeader = `<tr>
<th rowspan="2">Date</th>
<th colspan="3">Temperature<br>(C)</th>
<th colspan="2">Wind<br>(km/h)</th>
<th rowspan="2">Pres.s.lev<br>(Hp)</th>
<th rowspan="2">Prec.<br>(mm)</th>
<th rowspan="2">VisKm</th>
</tr>
<tr><th>Max</th><th>Min</th><th>Avg</th><th>Dir.</th><th>Int.</th></tr>`

// fullRow renders one data row for fullHeader.
func fullRow(month MonthKey, day int) []string {
	return []string{
		fmt.Sprintf("%02d/%02d", int(month.Month), day),
		fmt.Sprintf("%d.0", 20+day%5),
		fmt.Sprintf("%d.0", 10+day%5),
		fmt.Sprintf("%d.5", 15+day%5),
		"NW",
		fmt.Sprintf("%d", day),
		"1013.2",
		"Tr",
		"----",
	}
}

// monthPage renders a gsynres-like page for month with one row per day,
// newest first, using rowFn to build each row's cells.
func monthPage(month MonthKey, header string, rowFn func(MonthKey, int) []string) string {
	var sb strings.Builder
	sb.WriteString("<html><body><h3>summary</h3>\n")
	sb.WriteString(`<table border="0"><caption>Daily summary</caption><thead>`)
	sb.WriteString(header)
	sb.WriteString("</thead><tbody>\n")
	for day := month.Days(); day >= 1; day-- {
		sb.WriteString("<tr>")
		for _, cell := range rowFn(month, day) {
			sb.WriteString("<td>" + cell + "</td>")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</tbody></table></body></html>")
	return sb.String()
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func mustTable(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	table, err := LocateTable(mustDoc(t, html))
	if err != nil {
		t.Fatalf("locate table: %v", err)
	}
	return table
}

func mustMonth(t *testing.T, year, month int) MonthKey {
	t.Helper()
	m, err := NewMonthKey(year, month)
	if err != nil {
		t.Fatalf("month key: %v", err)
	}
	return m
}
