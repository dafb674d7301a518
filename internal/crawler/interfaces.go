package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher retrieves a page and returns its parsed document tree.
// Implementations retry transient failures and return ErrFetchExhausted
// once their attempts run out.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// SeriesSink appends one normalized value to the series file of a field.
type SeriesSink interface {
	Write(field, timestamp, raw string) error
}

// SinkFactory opens a sink rooted at a run's destination directory.
type SinkFactory func(dir string) (SeriesSink, error)

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
