package assets_test

import (
	"encoding/json"
	"testing"

	"github.com/ACMILabs/acmi-api/internal/assets"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workWithThumbnails builds a record carrying a thumbnail at every nesting
// point the schema defines. Built through a JSON round trip so nested
// shapes match what the cache actually holds.
func workWithThumbnails(t *testing.T) domain.Record {
	t.Helper()

	raw := `{
		"id": 1,
		"thumbnail": {"uri": "t.jpg"},
		"image": {"uri": "i.jpg"},
		"images": [{"uri": "a.jpg"}],
		"videos": [{"uri": "v.mp4"}],
		"video": {"uri": "v.mp4"},
		"group": {"id": 2, "thumbnail": {"uri": "t.jpg"}},
		"group_works": [{"id": 3, "thumbnail": {"uri": "t.jpg"}}],
		"group_siblings": [{"id": 4, "acmi_id": "X1", "thumbnail": {"uri": "t.jpg"}}],
		"part": {"id": 5, "thumbnail": {"uri": "t.jpg"}},
		"parts": [{"id": 6, "thumbnail": {"uri": "t.jpg"}}],
		"part_siblings": [{"id": 7, "thumbnail": {"uri": "t.jpg"}}],
		"key_work": {"id": 8, "thumbnail": {"uri": "t.jpg"}},
		"links": [
			{"start": {"id": 9, "thumbnail": {"uri": "t.jpg"}}, "end": {"id": 10, "thumbnail": {"uri": "t.jpg"}}}
		],
		"video_links": [
			{"uri": "https://youtu.be/abc"},
			{"uri": "https://vimeo.com/1"}
		]
	}`

	var rec domain.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	return rec
}

// hasThumbnail walks the record looking for any surviving thumbnail key.
func hasThumbnail(node any) bool {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if key == "thumbnail" {
				return true
			}
			if hasThumbnail(child) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if hasThumbnail(child) {
				return true
			}
		}
	}
	return false
}

func newRedactor(cfg assets.Config) *assets.Migrator {
	return newMigrator(newFakeStore(), cfg)
}

func TestRedact_VideosExcludedStripsEveryThumbnail(t *testing.T) {
	t.Parallel()

	rec := workWithThumbnails(t)
	migrator := newRedactor(assets.Config{IncludeImages: true, IncludeVideos: false})

	migrator.Redact(domain.SingleDocument(rec))

	assert.False(t, hasThumbnail(map[string]any(rec)), "no thumbnail key may survive at any nesting point")
	assert.NotContains(t, rec, "videos")
	assert.NotContains(t, rec, "video")
	assert.Contains(t, rec, "images")
}

func TestRedact_ImagesExcluded(t *testing.T) {
	t.Parallel()

	rec := workWithThumbnails(t)
	migrator := newRedactor(assets.Config{IncludeImages: false, IncludeVideos: true})

	migrator.Redact(domain.SingleDocument(rec))

	assert.NotContains(t, rec, "images")
	assert.NotContains(t, rec, "image")
	assert.False(t, hasThumbnail(map[string]any(rec)))
	assert.Contains(t, rec, "videos")
	// Video links are untouched when videos are included.
	assert.Len(t, rec["video_links"], 2)
}

func TestRedact_EverythingIncludedIsPassthrough(t *testing.T) {
	t.Parallel()

	rec := workWithThumbnails(t)
	migrator := newRedactor(assets.Config{IncludeImages: true, IncludeVideos: true})

	migrator.Redact(domain.SingleDocument(rec))

	assert.Contains(t, rec, "thumbnail")
	assert.Contains(t, rec, "images")
	assert.Contains(t, rec, "videos")
}

func TestRedact_FiltersVideoLinksToAllowList(t *testing.T) {
	t.Parallel()

	rec := workWithThumbnails(t)
	migrator := newRedactor(assets.Config{IncludeImages: true})

	migrator.Redact(domain.SingleDocument(rec))

	links := rec["video_links"].([]any)
	require.Len(t, links, 1)
	link := links[0].(map[string]any)
	assert.Equal(t, "https://youtu.be/abc", link["uri"])
}

// Regression: removing by index while iterating skips every second
// disallowed entry when they are adjacent. The filter must drop all of a
// run of consecutive disallowed links.
func TestRedact_ConsecutiveDisallowedVideoLinks(t *testing.T) {
	t.Parallel()

	raw := `{"id": 1, "video_links": [
		{"uri": "https://vimeo.com/1"},
		{"uri": "https://vimeo.com/2"},
		{"uri": "https://vimeo.com/3"},
		{"uri": "https://youtu.be/keep"},
		{"uri": "https://dailymotion.com/4"},
		{"uri": "https://dailymotion.com/5"}
	]}`
	var rec domain.Record
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))

	migrator := newRedactor(assets.Config{IncludeImages: true})
	migrator.Redact(domain.SingleDocument(rec))

	links := rec["video_links"].([]any)
	require.Len(t, links, 1)
	assert.Equal(t, "https://youtu.be/keep", links[0].(map[string]any)["uri"])
}

func TestFilterSiblings(t *testing.T) {
	t.Parallel()

	raw := `{"id": 1, "group_siblings": [
		{"id": 10, "acmi_id": "AEO1"},
		{"id": 11, "acmi_id": "LN2"},
		{"id": 12, "acmi_id": "P3"},
		{"id": 13, "acmi_id": "4"}
	]}`

	newRecord := func(t *testing.T) domain.Record {
		t.Helper()
		var rec domain.Record
		require.NoError(t, json.Unmarshal([]byte(raw), &rec))
		return rec
	}

	migrator := newRedactor(assets.Config{})

	t.Run("single record", func(t *testing.T) {
		t.Parallel()

		rec := newRecord(t)
		migrator.FilterSiblings(domain.SingleDocument(rec))

		siblings := rec["group_siblings"].([]any)
		require.Len(t, siblings, 1)
		assert.Equal(t, "4", siblings[0].(map[string]any)["acmi_id"])
	})

	t.Run("listing page", func(t *testing.T) {
		t.Parallel()

		page := &domain.Page{Results: []domain.Record{newRecord(t), newRecord(t)}}
		migrator.FilterSiblings(domain.ListingDocument(page))

		for _, rec := range page.Results {
			siblings := rec["group_siblings"].([]any)
			require.Len(t, siblings, 1)
			assert.Equal(t, "4", siblings[0].(map[string]any)["acmi_id"])
		}
	})
}

func TestFilterSiblings_NoSiblingField(t *testing.T) {
	t.Parallel()

	rec := domain.Record{"id": float64(1)}
	migrator := newRedactor(assets.Config{})
	migrator.FilterSiblings(domain.SingleDocument(rec))

	assert.NotContains(t, rec, "group_siblings")
}
