// Package query shapes list requests: it maps URL query parameters onto
// storage filters (date buckets, search, ordering, item pages).
package query

import (
	"net/url"
	"strconv"

	"github.com/sandeepkv93/trackd/internal/storage"
)

// DateBucket reads the `date` parameter. Unknown values fall back to no
// filtering rather than an error.
func DateBucket(values url.Values) storage.DateBucket {
	switch values.Get("date") {
	case string(storage.DatePlanned):
		return storage.DatePlanned
	case string(storage.DateToday):
		return storage.DateToday
	case string(storage.DateNotSorted):
		return storage.DateNotSorted
	default:
		return storage.DateAny
	}
}

// Ordering whitelists the `ordering` parameter; anything else falls back.
func Ordering(values url.Values, fallback string) string {
	switch ordering := values.Get("ordering"); ordering {
	case "name", "-name", "id", "-id":
		return ordering
	default:
		return fallback
	}
}

func Search(values url.Values) string {
	return values.Get("search")
}

// Page is a 1-based page of fixed size.
type Page struct {
	Number int
	Size   int
}

// ItemsPage reads the `items_page` parameter; malformed or missing values
// mean page 1.
func ItemsPage(values url.Values, size int) Page {
	page := Page{Number: 1, Size: size}
	raw := values.Get("items_page")
	if raw == "" {
		return page
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return page
	}
	page.Number = n
	return page
}

func (p Page) Limit() int {
	return p.Size
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Next returns the following page number if more items remain past this
// page, else nil.
func (p Page) Next(total int) *int {
	if p.Number*p.Size >= total {
		return nil
	}
	n := p.Number + 1
	return &n
}

// Previous returns the preceding page number, else nil on the first page.
func (p Page) Previous() *int {
	if p.Number <= 1 {
		return nil
	}
	n := p.Number - 1
	return &n
}
