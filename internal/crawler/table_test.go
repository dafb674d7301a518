package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateTable(t *testing.T) {
	t.Parallel()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		page := monthPage(mustMonth(t, 2019, 1), fullHeader, fullRow)
		table, err := LocateTable(mustDoc(t, page))
		require.NoError(t, err)
		assert.Equal(t, 2+31, table.Find("tr").Length())
	})

	t.Run("no table means no data", func(t *testing.T) {
		t.Parallel()
		_, err := LocateTable(mustDoc(t, `<html><body><p>No valid data for this station</p></body></html>`))
		assert.ErrorIs(t, err, ErrNoTableFound)
	})

	t.Run("bordered tables are ignored", func(t *testing.T) {
		t.Parallel()
		_, err := LocateTable(mustDoc(t, `<html><body><table border="1"><tr><td>x</td></tr></table></body></html>`))
		assert.ErrorIs(t, err, ErrNoTableFound)
	})

	t.Run("nil document", func(t *testing.T) {
		t.Parallel()
		_, err := LocateTable(nil)
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()
		_, err := LocateTable(mustDoc(t, ""))
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("header missing", func(t *testing.T) {
		t.Parallel()
		_, err := LocateTable(mustDoc(t, `<html><body><table border="0"><tr><th>Date</th></tr></table></body></html>`))
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})
}

func TestResolveSchemaFullHeader(t *testing.T) {
	t.Parallel()

	table := mustTable(t, monthPage(mustMonth(t, 2019, 1), fullHeader, fullRow))
	schema := ResolveSchema(table)

	assert.Equal(t, []string{
		"Date",
		"Temperature(C)Max",
		"Temperature(C)Min",
		"Temperature(C)Avg",
		"Wind(km/h)Dir.",
		"Wind(km/h)Int.",
		"Pres.s.lev(Hp)",
		"Prec.(mm)",
		"VisKm",
	}, schema.Names())
	assert.Equal(t, 9, schema.Width)
	assert.True(t, schema.Usable())
	assert.LessOrEqual(t, schema.Len(), MaxColumns)
}

func TestResolveSchemaSkipsUnknownColumns(t *testing.T) {
	t.Parallel()

	header := `<tr>
<th rowspan="2">Date</th>
<th colspan="2">Temperature<br>(C)</th>
<th rowspan="2">TdAvg<br>(C)</th>
<th rowspan="2">Hr.Avg<br>(%)</th>
<th colspan="3">Wind<br>(km/h)</th>
<th rowspan="2">TotClOct</th>
<th rowspan="2">VisKm</th>
</tr>
<tr><th>Max</th><th>Min</th><th>Dir.</th><th>Int.</th><th>Gust</th></tr>`
	row := func(m MonthKey, day int) []string {
		return []string{"01/01", "5", "1", "0.5", "80", "N", "12", "30", "7", "25"}
	}
	schema := ResolveSchema(mustTable(t, monthPage(mustMonth(t, 2019, 1), header, row)))

	require.Equal(t, []Column{
		{Name: "Date", Index: 0},
		{Name: "Temperature(C)Max", Index: 1},
		{Name: "Temperature(C)Min", Index: 2},
		{Name: "TdAvg(C)", Index: 3},
		{Name: "Hr.Avg(%)", Index: 4},
		{Name: "Wind(km/h)Dir.", Index: 5},
		{Name: "Wind(km/h)Int.", Index: 6},
		{Name: "VisKm", Index: 9},
	}, schema.Columns)
	assert.Equal(t, 10, schema.Width)
}

func TestResolveSchemaHeaderWithoutSpans(t *testing.T) {
	t.Parallel()

	header := `<tr>
<th>Date</th>
<th>Temperature<br>(C)</th>
<th>Wind<br>(km/h)</th>
<th>Pres.s.lev<br>(Hp)</th>
<th>Prec.<br>(mm)</th>
<th>VisKm</th>
</tr>
<tr><th>Max</th><th>Min</th><th>Avg</th><th>Dir.</th><th>Int.</th></tr>`
	jan := mustMonth(t, 2019, 1)
	table := mustTable(t, monthPage(jan, header, fullRow))
	schema := ResolveSchema(table)

	assert.Equal(t, []string{
		"Date",
		"Temperature(C)Max",
		"Temperature(C)Min",
		"Temperature(C)Avg",
		"Wind(km/h)Dir.",
		"Wind(km/h)Int.",
		"Pres.s.lev(Hp)",
		"Prec.(mm)",
		"VisKm",
	}, schema.Names())
	assert.Equal(t, 9, schema.Width)

	records, err := ExtractRecords(table, schema, jan)
	require.NoError(t, err)
	require.Len(t, records, 31)
	assert.Equal(t, "2019-01-01", records[0].Timestamp)
	assert.Equal(t, "NW", records[0].Fields[WindDirectionColumn])
	assert.Equal(t, "----", records[0].Fields["VisKm"])
}

func TestResolveSchemaGroupWithoutKnownSubLabels(t *testing.T) {
	t.Parallel()

	header := `<tr><th>Date</th><th>Temperature<br>(C)</th><th>VisKm</th></tr><tr><th>Gust</th></tr>`
	row := func(m MonthKey, day int) []string { return []string{"01/01", "5", "10"} }
	schema := ResolveSchema(mustTable(t, monthPage(mustMonth(t, 2019, 1), header, row)))

	assert.Equal(t, []Column{{Name: "Date", Index: 0}, {Name: "VisKm", Index: 2}}, schema.Columns)
}

func TestResolveSchemaShortHeader(t *testing.T) {
	t.Parallel()

	header := `<tr><th rowspan="2">Date</th><th rowspan="2">VisKm</th><th rowspan="2">SnowDep</th></tr><tr></tr>`
	row := func(m MonthKey, day int) []string { return []string{"01/01", "10", "0"} }
	schema := ResolveSchema(mustTable(t, monthPage(mustMonth(t, 2019, 1), header, row)))

	assert.Equal(t, []string{"Date", "VisKm"}, schema.Names())
	assert.False(t, schema.Usable())
}

func TestResolveLeaf(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		leaf   headerLeaf
		want   string
		wantOK bool
	}{
		{headerLeaf{group: "Temperature(C)", sub: "Avg"}, "Temperature(C)Avg", true},
		{headerLeaf{group: "Temperature(C)", sub: "Gust"}, "", false},
		{headerLeaf{group: "Wind(km/h)", sub: "Dir."}, "Wind(km/h)Dir.", true},
		{headerLeaf{group: "Wind(km/h)", sub: "Max"}, "", false},
		{headerLeaf{group: "Prec.(mm)"}, "Prec.(mm)", true},
		{headerLeaf{group: "SunD-1(h)"}, "", false},
	}
	for _, tc := range testCases {
		got, ok := resolveLeaf(tc.leaf)
		assert.Equal(t, tc.wantOK, ok, "%+v", tc.leaf)
		assert.Equal(t, tc.want, got, "%+v", tc.leaf)
	}
}
