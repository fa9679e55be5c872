package assets

import (
	"strings"

	"github.com/ACMILabs/acmi-api/internal/domain"
)

// Nested record fields that can carry thumbnails.
var (
	thumbnailObjectFields = []string{"group", "part", "key_work"}
	thumbnailListFields   = []string{"group_works", "group_siblings", "parts", "part_siblings"}
)

// Redact strips excluded media from every record in the document. With
// images excluded the image fields and every thumbnail go; with videos
// excluded the video fields, thumbnails and non-allow-listed video links
// go. Thumbnails are removed in either case because a related work's
// thumbnail may come from either medium.
func (m *Migrator) Redact(doc domain.Document) {
	if m.cfg.IncludeImages && m.cfg.IncludeVideos {
		return
	}
	doc.Each(func(rec domain.Record) {
		if !m.cfg.IncludeImages {
			delete(rec, "images")
			removeThumbnails(rec)
		}
		if !m.cfg.IncludeVideos {
			delete(rec, "videos")
			delete(rec, "video")
			removeThumbnails(rec)
			m.filterVideoLinks(rec)
		}
	})
}

// removeThumbnails drops the thumbnail key at every nesting point the
// schema defines, plus the creator image field.
func removeThumbnails(rec domain.Record) {
	delete(rec, "thumbnail")
	delete(rec, "image")

	for _, field := range thumbnailObjectFields {
		if sub, ok := rec[field].(map[string]any); ok {
			delete(sub, "thumbnail")
		}
	}
	for _, field := range thumbnailListFields {
		list, ok := rec[field].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			if sub, ok := item.(map[string]any); ok {
				delete(sub, "thumbnail")
			}
		}
	}

	// Constellation links carry start and end works.
	if links, ok := rec["links"].([]any); ok {
		for _, item := range links {
			link, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, side := range []string{"start", "end"} {
				if sub, ok := link[side].(map[string]any); ok {
					delete(sub, "thumbnail")
				}
			}
		}
	}
}

// filterVideoLinks keeps only links whose URI matches an allow-listed
// platform. A fresh slice is built rather than removing entries from the
// one being iterated, which skips entries when disallowed links are
// adjacent.
func (m *Migrator) filterVideoLinks(rec domain.Record) {
	links, ok := rec["video_links"].([]any)
	if !ok {
		return
	}

	kept := make([]any, 0, len(links))
	for _, item := range links {
		link, ok := item.(map[string]any)
		if !ok {
			continue
		}
		uri, _ := link["uri"].(string)
		if m.allowedPlatform(uri) {
			kept = append(kept, item)
		}
	}
	rec["video_links"] = kept
}

func (m *Migrator) allowedPlatform(uri string) bool {
	for _, platform := range m.cfg.VideoPlatforms {
		if strings.Contains(uri, platform) {
			return true
		}
	}
	return false
}

// FilterSiblings removes group siblings whose acmi_id carries a loan or
// external provenance prefix, for every record in the document.
func (m *Migrator) FilterSiblings(doc domain.Document) {
	doc.Each(func(rec domain.Record) {
		siblings, ok := rec["group_siblings"].([]any)
		if !ok {
			return
		}

		kept := make([]any, 0, len(siblings))
		for _, item := range siblings {
			sibling, ok := item.(map[string]any)
			if !ok {
				kept = append(kept, item)
				continue
			}
			acmiID, _ := sibling["acmi_id"].(string)
			if m.externalSibling(acmiID) {
				m.log.Debug("Removing external group sibling", "acmi_id", acmiID)
				continue
			}
			kept = append(kept, item)
		}
		rec["group_siblings"] = kept
	})
}

func (m *Migrator) externalSibling(acmiID string) bool {
	for _, prefix := range m.cfg.SiblingPrefixes {
		if strings.HasPrefix(acmiID, prefix) {
			return true
		}
	}
	return false
}
