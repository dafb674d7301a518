package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the ogimet daily-summary endpoint.
const DefaultBaseURL = "https://www.ogimet.com/cgi-bin/gsynres"

// LinkBuilder builds the request URL for one station-month.
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder returns a LinkBuilder for baseURL, or DefaultBaseURL when empty.
func NewLinkBuilder(baseURL string) LinkBuilder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return LinkBuilder{baseURL: baseURL}
}

// MonthURL requests the month's daily summaries ending on its last day, one
// row per day, newest first.
func (b LinkBuilder) MonthURL(stationID string, month MonthKey) string {
	days := month.Days()
	q := []struct{ k, v string }{
		{"lang", "en"},
		{"ind", stationID},
		{"ndays", strconv.Itoa(days)},
		{"ano", strconv.Itoa(month.Year)},
		{"mes", fmt.Sprintf("%02d", int(month.Month))},
		{"day", fmt.Sprintf("%02d", days)},
		{"hora", "00"},
		{"ord", "REV"},
		{"Send", "Send"},
	}
	// Parameter order follows the site's own form.
	var sb strings.Builder
	sb.WriteString(b.baseURL)
	for i, kv := range q {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(kv.k)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.v))
	}
	return sb.String()
}
