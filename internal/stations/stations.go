// Package stations loads the station table that drives batch downloads.
package stations

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Column names in the station CSV.
const (
	ColumnID          = "WMO INDEX"
	ColumnLatitude    = "Latitude"
	ColumnWIGOS       = "WIGOS ID"
	ColumnEstablished = "Established"
	ColumnClosed      = "Closed"

	decimalLatitude = "DecimalLatitude"
	missingWIGOS    = "0-0-0-MISSING"
)

// ErrMissingColumn is returned when the CSV lacks a required column.
var ErrMissingColumn = errors.New("station csv missing column")

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2006-01",
	"2006",
}

// Station is one row of the station table. Established and Closed are zero
// when the CSV leaves them blank or unparseable.
type Station struct {
	ID          string
	Latitude    float64
	WIGOSID     string
	Established time.Time
	Closed      time.Time
}

// Filter narrows the loaded table.
type Filter struct {
	// MinLatitude keeps stations strictly north of it when set.
	MinLatitude *float64
}

// Load reads a station CSV, drops stations without a WIGOS id and applies f.
func Load(r io.Reader, f Filter) ([]Station, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read station csv: %w", df.Err)
	}
	if err := requireColumns(df.Names(), ColumnID, ColumnLatitude, ColumnWIGOS); err != nil {
		return nil, err
	}

	df = df.Filter(dataframe.F{
		Colname:    ColumnWIGOS,
		Comparator: series.Neq,
		Comparando: missingWIGOS,
	})
	if df.Err != nil {
		return nil, fmt.Errorf("filter wigos ids: %w", df.Err)
	}

	raw := df.Col(ColumnLatitude).Records()
	lats := make([]float64, len(raw))
	for i, s := range raw {
		v, err := ParseLatitude(s)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", df.Col(ColumnID).Elem(i).String(), err)
		}
		lats[i] = v
	}
	df = df.Mutate(series.New(lats, series.Float, decimalLatitude))
	if df.Err != nil {
		return nil, fmt.Errorf("add decimal latitude: %w", df.Err)
	}

	if f.MinLatitude != nil {
		df = df.Filter(dataframe.F{
			Colname:    decimalLatitude,
			Comparator: series.Greater,
			Comparando: *f.MinLatitude,
		})
		if df.Err != nil {
			return nil, fmt.Errorf("filter latitude: %w", df.Err)
		}
	}

	return toStations(df), nil
}

func toStations(df dataframe.DataFrame) []Station {
	names := df.Names()
	ids := df.Col(ColumnID).Records()
	wigos := df.Col(ColumnWIGOS).Records()
	lats := df.Col(decimalLatitude).Float()
	established := optionalColumn(df, names, ColumnEstablished)
	closed := optionalColumn(df, names, ColumnClosed)

	out := make([]Station, 0, len(ids))
	for i := range ids {
		out = append(out, Station{
			ID:          strings.TrimSpace(ids[i]),
			Latitude:    lats[i],
			WIGOSID:     wigos[i],
			Established: parseDate(established[i]),
			Closed:      parseDate(closed[i]),
		})
	}
	return out
}

func optionalColumn(df dataframe.DataFrame, names []string, col string) []string {
	for _, n := range names {
		if n == col {
			return df.Col(col).Records()
		}
	}
	return make([]string, df.Nrow())
}

func requireColumns(have []string, want ...string) error {
	set := make(map[string]struct{}, len(have))
	for _, n := range have {
		set[n] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingColumn, w)
		}
	}
	return nil
}

// ParseLatitude converts "DD-MM[N|S]" to signed decimal degrees.
func ParseLatitude(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("latitude %q too short", s)
	}
	sign := 1.0
	switch s[len(s)-1] {
	case 'N':
	case 'S':
		sign = -1
	default:
		return 0, fmt.Errorf("latitude %q has no hemisphere", s)
	}
	degStr, minStr, ok := strings.Cut(s[:len(s)-1], "-")
	if !ok {
		return 0, fmt.Errorf("latitude %q is not DD-MM", s)
	}
	deg, err := strconv.Atoi(degStr)
	if err != nil {
		return 0, fmt.Errorf("latitude %q degrees: %w", s, err)
	}
	minutes, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, fmt.Errorf("latitude %q minutes: %w", s, err)
	}
	if deg < 0 || deg > 90 || minutes < 0 || minutes >= 60 {
		return 0, fmt.Errorf("latitude %q out of range", s)
	}
	return sign * (float64(deg) + float64(minutes)/60), nil
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "NaN" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
