// Package domain defines the collection data model shared by the sync
// pipeline, the cache and the serving layer.
package domain

import (
	"encoding/json"
	"fmt"
)

// Resource identifies one syncable collection resource type.
type Resource string

// The four public collection resources.
const (
	Works          Resource = "works"
	Audio          Resource = "audio"
	Constellations Resource = "constellations"
	Creators       Resource = "creators"
)

// Resources lists all resource types in sync order.
var Resources = []Resource{Works, Audio, Constellations, Creators}

// ParseResource validates a resource name from a request or flag.
func ParseResource(name string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown resource: %q", name)
}

// Singular returns the human label used in error messages,
// e.g. "Work" for works.
func (r Resource) Singular() string {
	switch r {
	case Works:
		return "Work"
	case Audio:
		return "Audio"
	case Constellations:
		return "Constellation"
	case Creators:
		return "Creator"
	}
	return string(r)
}

// Record is one collection entity as received from upstream. The schema is
// upstream-owned and open-ended, so records stay generic maps with typed
// accessors where the pipeline needs structure.
type Record map[string]any

// ID returns the record's integer id. JSON numbers decode as float64.
func (r Record) ID() (int, bool) {
	switch v := r["id"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(id), true
	}
	return 0, false
}

// Bool reads a boolean field, absent or mistyped reads as false.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// Page is one page of a resource listing: the envelope shared by upstream
// responses, cached index pages and search results.
type Page struct {
	Count    int      `json:"count"`
	Next     *string  `json:"next"`
	Previous *string  `json:"previous"`
	Results  []Record `json:"results"`
}

// Document is a tagged variant over the two shapes the migration and
// redaction passes operate on: a listing page or a single record.
type Document struct {
	page   *Page
	record Record
}

// ListingDocument wraps an index page.
func ListingDocument(page *Page) Document {
	return Document{page: page}
}

// SingleDocument wraps one record.
func SingleDocument(record Record) Document {
	return Document{record: record}
}

// IsListing reports whether the document is an index page.
func (d Document) IsListing() bool { return d.page != nil }

// Page returns the wrapped page, or nil for a single record.
func (d Document) Page() *Page { return d.page }

// Record returns the wrapped record, or nil for a listing.
func (d Document) Record() Record { return d.record }

// Each visits every record in the document: the single record, or every
// listing result in order.
func (d Document) Each(fn func(Record)) {
	if d.page != nil {
		for _, rec := range d.page.Results {
			fn(rec)
		}
		return
	}
	if d.record != nil {
		fn(d.record)
	}
}
