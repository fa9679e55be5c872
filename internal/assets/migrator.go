// Package assets relocates signed upstream asset URLs into the public
// bucket and applies visibility redaction to cached records.
package assets

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/metrics"
	"github.com/ACMILabs/acmi-api/internal/objectstore"
)

// Config controls migration and redaction. Threaded in at construction so
// behaviour is explicit rather than ambient.
type Config struct {
	// Bucket is the public destination bucket.
	Bucket string
	// IncludeImages keeps image fields in cached records.
	IncludeImages bool
	// IncludeVideos keeps video fields and non-allow-listed video links.
	IncludeVideos bool
	// VideoPlatforms are the allow-listed video link URI fragments.
	VideoPlatforms []string
	// SiblingPrefixes mark loan/external provenance in sibling acmi_ids.
	SiblingPrefixes []string
}

var (
	defaultVideoPlatforms  = []string{"youtu"}
	defaultSiblingPrefixes = []string{"AEO", "LN", "P"}
)

// signedAssetPattern matches a time-limited signed S3 URL up to its query
// string, capturing the unsigned base, the source bucket and the object
// path.
var signedAssetPattern = regexp.MustCompile(
	`^(https://([a-z0-9-]+)\.s3[a-z0-9.-]*\.amazonaws\.com/([^?]+))\?`,
)

// Migrator rewrites asset references in a document and keeps the public
// bucket in step with them.
type Migrator struct {
	store   objectstore.Interface
	cfg     Config
	log     logger.Interface
	metrics *metrics.Metrics
}

// New creates a migrator. Zero-value allow and prefix lists take the
// production defaults.
func New(store objectstore.Interface, cfg Config, log logger.Interface, m *metrics.Metrics) *Migrator {
	if len(cfg.VideoPlatforms) == 0 {
		cfg.VideoPlatforms = defaultVideoPlatforms
	}
	if len(cfg.SiblingPrefixes) == 0 {
		cfg.SiblingPrefixes = defaultSiblingPrefixes
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Migrator{store: store, cfg: cfg, log: log, metrics: m}
}

// Process runs the full pipeline on a document: migrate assets to the
// public bucket, redact excluded media, filter external siblings.
func (m *Migrator) Process(ctx context.Context, doc domain.Document) error {
	if err := m.Migrate(ctx, doc); err != nil {
		return err
	}
	m.Redact(doc)
	m.FilterSiblings(doc)
	return nil
}

// assetRef is one signed asset reference found in a document.
type assetRef struct {
	// signedBase is the signed URL with its query string removed. Every
	// string leaf carrying this base is rewritten.
	signedBase string
	srcBucket  string
	srcKey     string
	destKey    string
}

// Migrate relocates every signed asset reference in the document and
// rewrites the links to their canonical public URLs. Copies are idempotent:
// an existing destination key is never re-uploaded. Per-asset store
// failures are logged and skipped, never fatal to the batch.
func (m *Migrator) Migrate(ctx context.Context, doc domain.Document) error {
	refs := m.collectRefs(doc)
	if len(refs) == 0 {
		return nil
	}

	// References aliasing to the same destination key are one physical
	// object: the store sees it once, but every signed base pointing at it
	// gets rewritten.
	migrated := make(map[string]bool, len(refs))
	rewrites := make(map[string]string, len(refs))
	for _, ref := range refs {
		ok, done := migrated[ref.destKey]
		if !done {
			ok = m.ensureMigrated(ctx, ref)
			migrated[ref.destKey] = ok
		}
		if ok {
			rewrites[ref.signedBase] = m.publicURL(ref.destKey)
		}
	}

	if len(rewrites) > 0 {
		rewriteDocument(doc, rewrites)
	}
	return nil
}

// ensureMigrated makes one destination key present in the public bucket,
// copying from source when it is not already there. Reports whether the
// key is safe to link to.
func (m *Migrator) ensureMigrated(ctx context.Context, ref assetRef) bool {
	exists, err := m.store.Exists(ctx, m.cfg.Bucket, ref.destKey)
	if err != nil {
		m.metrics.AssetErrors.Inc()
		m.log.Error("Asset existence check failed, leaving record unmigrated",
			"key", ref.destKey,
			"error", err,
		)
		return false
	}

	if exists {
		m.metrics.AssetsSkipped.Inc()
		m.log.Debug("Asset already migrated", "key", ref.destKey)
		return true
	}

	if err := m.store.Copy(ctx, ref.srcBucket, ref.srcKey, m.cfg.Bucket, ref.destKey); err != nil {
		m.metrics.AssetErrors.Inc()
		m.log.Error("Asset copy failed, leaving record unmigrated",
			"source", ref.srcBucket+"/"+ref.srcKey,
			"key", ref.destKey,
			"error", err,
		)
		return false
	}
	m.metrics.AssetsCopied.Inc()
	return true
}

// DeleteAssets removes the document's assets from the public bucket.
// Used when reconciling unpublished records. Missing objects are a no-op.
func (m *Migrator) DeleteAssets(ctx context.Context, doc domain.Document) error {
	deleted := make(map[string]struct{})
	for _, ref := range m.collectRefs(doc) {
		if _, done := deleted[ref.destKey]; done {
			continue
		}
		deleted[ref.destKey] = struct{}{}
		exists, err := m.store.Exists(ctx, m.cfg.Bucket, ref.destKey)
		if err != nil {
			m.metrics.AssetErrors.Inc()
			m.log.Error("Asset existence check failed during delete",
				"key", ref.destKey,
				"error", err,
			)
			continue
		}
		if !exists {
			continue
		}
		if err := m.store.Delete(ctx, m.cfg.Bucket, ref.destKey); err != nil {
			m.metrics.AssetErrors.Inc()
			m.log.Error("Asset delete failed", "key", ref.destKey, "error", err)
			continue
		}
		m.metrics.AssetsDeleted.Inc()
	}
	return nil
}

// collectRefs walks the document tree and returns the distinct signed
// asset references it carries, deduplicated by signed base so every base
// appearing in the document is represented.
func (m *Migrator) collectRefs(doc domain.Document) []assetRef {
	seen := make(map[string]struct{})
	var refs []assetRef

	visit := func(s string) string {
		ref, ok := m.parseRef(s)
		if ok {
			if _, dup := seen[ref.signedBase]; !dup {
				seen[ref.signedBase] = struct{}{}
				refs = append(refs, ref)
			}
		}
		return s
	}
	walkDocumentStrings(doc, visit)
	return refs
}

// parseRef extracts source bucket, source key and canonical destination
// key from a signed asset URL. Strings that are not signed asset URLs, or
// that carry no media path, are not references.
func (m *Migrator) parseRef(s string) (assetRef, bool) {
	match := signedAssetPattern.FindStringSubmatch(s)
	if match == nil {
		return assetRef{}, false
	}

	srcKey, err := url.PathUnescape(match[3])
	if err != nil {
		srcKey = match[3]
	}

	idx := strings.Index(srcKey, "media/")
	if idx < 0 {
		m.log.Warn("Signed asset URL without a media path, skipping", "url", match[1])
		return assetRef{}, false
	}

	return assetRef{
		signedBase: match[1],
		srcBucket:  match[2],
		srcKey:     srcKey,
		destKey:    canonicalKey(srcKey[idx+len("media/"):]),
	}, true
}

// canonicalKey derives the public bucket key from the decoded media path.
// Two references normalizing to the same key are the same physical object.
func canonicalKey(mediaPath string) string {
	switch {
	case strings.Contains(mediaPath, "collection/"):
		return strings.ReplaceAll(mediaPath, "collection/", "")
	case strings.Contains(mediaPath, "works/"):
		return strings.ReplaceAll(mediaPath, "works/", "")
	case strings.Contains(mediaPath, ".mp3"):
		return "audio/" + mediaPath
	default:
		return "video/" + mediaPath
	}
}

// publicURL builds the canonical public link for a destination key,
// re-escaping the decoded path.
func (m *Migrator) publicURL(destKey string) string {
	escaped := (&url.URL{Path: "/" + destKey}).EscapedPath()
	return "https://" + m.cfg.Bucket + ".s3.amazonaws.com" + escaped
}

// rewriteDocument replaces every string leaf whose unsigned base matches a
// migrated asset with that asset's public URL.
func rewriteDocument(doc domain.Document, rewrites map[string]string) {
	walkDocumentStrings(doc, func(s string) string {
		match := signedAssetPattern.FindStringSubmatch(s)
		if match == nil {
			return s
		}
		if publicLink, ok := rewrites[match[1]]; ok {
			return publicLink
		}
		return s
	})
}

// walkDocumentStrings visits every string leaf in the document and
// replaces it with fn's return value. Walking the parsed tree keeps the
// rewrite from over-matching inside unrelated serialized content.
func walkDocumentStrings(doc domain.Document, fn func(string) string) {
	doc.Each(func(rec domain.Record) {
		walkStrings(map[string]any(rec), fn)
	})
}

func walkStrings(node any, fn func(string) string) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if s, ok := child.(string); ok {
				v[key] = fn(s)
				continue
			}
			walkStrings(child, fn)
		}
	case []any:
		for i, child := range v {
			if s, ok := child.(string); ok {
				v[i] = fn(s)
				continue
			}
			walkStrings(child, fn)
		}
	}
}
