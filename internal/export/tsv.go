// Package export writes flat tab-separated snapshots of the cached
// collection for researchers and bulk consumers.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ACMILabs/acmi-api/internal/cache"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
)

const exportLogEvery = 1000

// Exporter generates one TSV file per supported resource from the
// cached record files.
type Exporter struct {
	cache *cache.Store
	root  string
	log   logger.Interface
}

// New creates an exporter writing under tsvRoot.
func New(store *cache.Store, tsvRoot string, log logger.Interface) *Exporter {
	return &Exporter{cache: store, root: tsvRoot, log: log}
}

// column maps one TSV header to the value it extracts from a record.
type column struct {
	name  string
	value func(domain.Record) string
}

func field(name string) column {
	return column{name: name, value: func(rec domain.Record) string {
		return formatValue(rec[name])
	}}
}

func dictKeys(name, key string) column {
	return column{name: name, value: func(rec domain.Record) string {
		return keysFromDicts(key, rec[name])
	}}
}

func nested(name, outer, inner, fallback string) column {
	return column{name: name, value: func(rec domain.Record) string {
		return nestedValue(rec, outer, inner, fallback)
	}}
}

func list(name string) column {
	return column{name: name, value: func(rec domain.Record) string {
		return stringsFromList(rec[name])
	}}
}

var workColumns = []column{
	field("id"),
	field("acmi_id"),
	field("title"),
	field("title_annotation"),
	field("slug"),
	field("creator_credit"),
	field("credit_line"),
	field("headline_credit"),
	nested("has_video", "thumbnail", "has_video", "false"),
	field("record_type"),
	field("type"),
	field("is_on_display"),
	field("last_on_display_place"),
	field("last_on_display_date"),
	field("is_context_indigenous"),
	field("material_description"),
	field("unpublished"),
	field("first_production_date"),
	field("brief_description"),
	dictKeys("constellations_primary", "id"),
	dictKeys("constellations_other", "id"),
	field("title_for_label"),
	field("creator_credit_for_label"),
	field("headline_credit_for_label"),
	field("description"),
	list("description_for_label"),
	field("credit_line_for_label"),
	nested("tap_count", "stats", "tap_count", "0"),
	dictKeys("links", "url"),
	dictKeys("creators_primary", "creator_id"),
	dictKeys("creators_other", "creator_id"),
	dictKeys("video_links", "uri"),
	field("media_note"),
	dictKeys("images", "id"),
	dictKeys("videos", "id"),
	dictKeys("holdings", "name"),
	nested("part_of", "part_of", "id", ""),
	dictKeys("parts", "id"),
	dictKeys("part_siblings", "id"),
	nested("group", "group", "id", ""),
	dictKeys("group_works", "id"),
	dictKeys("group_siblings", "id"),
	nested("source", "source", "name", ""),
	field("source_identifier"),
	dictKeys("production_places", "name"),
	dictKeys("production_dates", "date"),
	list("labels"),
	field("eaas_environment_id"),
	{name: "external_references", value: func(rec domain.Record) string {
		return externalReferencesToString(rec["external_references"])
	}},
}

var creatorColumns = []column{
	field("id"),
	field("name"),
	field("also_known_as"),
	field("date_of_birth"),
	field("date_of_death"),
	dictKeys("places_of_operation", "name"),
	field("biography"),
	field("biography_author"),
	field("date_of_biography"),
	dictKeys("external_links", "uri"),
	field("uuid"),
	nested("source", "source", "name", ""),
	field("source_identifier"),
	{name: "external_references", value: func(rec domain.Record) string {
		return externalReferencesToString(rec["external_references"])
	}},
	field("date_modified"),
}

func columnsFor(resource domain.Resource) ([]column, error) {
	switch resource {
	case domain.Works:
		return workColumns, nil
	case domain.Creators:
		return creatorColumns, nil
	default:
		return nil, fmt.Errorf("no tsv schema for %s", resource)
	}
}

// Generate writes {resource}.tsv from every cached record file and
// returns the number of rows written.
func (e *Exporter) Generate(resource domain.Resource) (int, error) {
	columns, err := columnsFor(resource)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(e.root, 0o755); err != nil {
		return 0, fmt.Errorf("create tsv directory: %w", err)
	}
	path := filepath.Join(e.root, fmt.Sprintf("%s.tsv", resource))
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create tsv file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	writer := csv.NewWriter(file)
	writer.Comma = '\t'

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.name
	}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write tsv header: %w", err)
	}

	paths, err := e.cache.RecordFiles(resource)
	if err != nil {
		return 0, err
	}
	e.log.Info("Generating the TSV", "resource", resource, "files", len(paths))

	rows := 0
	for _, recordPath := range paths {
		record, loadErr := e.cache.LoadRecord(recordPath)
		if loadErr != nil {
			e.log.Error("Skipping unreadable record file", "path", recordPath, "error", loadErr)
			continue
		}
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = col.value(record)
		}
		if err := writer.Write(row); err != nil {
			return rows, fmt.Errorf("write tsv row: %w", err)
		}
		rows++
		if rows%exportLogEvery == 0 {
			e.log.Info("TSV progress", "resource", resource, "rows", rows)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush tsv: %w", err)
	}
	e.log.Info("Finished generating TSV", "resource", resource, "rows", rows, "files", len(paths), "path", path)
	return rows, nil
}

// formatValue renders one JSON value as a TSV cell. Missing values are
// empty cells, integral floats print without an exponent or decimal.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// keysFromDicts joins one key's value from each dict in a list. Any
// malformed entry blanks the whole cell rather than producing a
// partial list.
func keysFromDicts(key string, value any) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		dict, ok := item.(map[string]any)
		if !ok {
			return ""
		}
		inner, ok := dict[key]
		if !ok {
			return ""
		}
		parts = append(parts, formatValue(inner))
	}
	return strings.Join(parts, ",")
}

// nestedValue reads record[outer][inner], falling back when either
// level is missing or not an object.
func nestedValue(rec domain.Record, outer, inner, fallback string) string {
	dict, ok := rec[outer].(map[string]any)
	if !ok {
		return fallback
	}
	value, ok := dict[inner]
	if !ok {
		return fallback
	}
	return formatValue(value)
}

func stringsFromList(value any) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = formatValue(item)
	}
	return strings.Join(parts, ",")
}

// externalReferencesToString renders references as (source name,
// identifier) tuples.
func externalReferencesToString(value any) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		reference, ok := item.(map[string]any)
		if !ok {
			return ""
		}
		name := nestedValue(reference, "source", "name", "")
		parts = append(parts, fmt.Sprintf("(%s,%s)", name, formatValue(reference["source_identifier"])))
	}
	return strings.Join(parts, ",")
}
