package collector

import "context"

// Response is a fetched page. Error statuses are returned as responses so
// callers can inspect the body for block pages.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Collector fetches pages over plain HTTP for sites that do not need a
// browser.
type Collector interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}
