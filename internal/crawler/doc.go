// Package crawler implements the monthly ogimet download pipeline: link
// construction, table location, header resolution, row extraction and the
// run controller that commits a station's series files all-or-nothing.
package crawler
