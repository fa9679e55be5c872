// Package syncer drives the nightly pipeline: pull records from the
// private collection API, relocate their assets, refresh the file
// cache, and rebuild the search indices.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/ACMILabs/acmi-api/internal/cache"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/metrics"
	"github.com/ACMILabs/acmi-api/internal/upstream"
)

// assetProcessor prepares a document for publication.
type assetProcessor interface {
	Process(ctx context.Context, doc domain.Document) error
	DeleteAssets(ctx context.Context, doc domain.Document) error
}

// searchIndexer maintains the per-resource search indices.
type searchIndexer interface {
	DeleteDocument(ctx context.Context, resource domain.Resource, id int) error
	Reindex(ctx context.Context, resource domain.Resource) (indexed, total int, err error)
}

// tsvExporter regenerates the flat snapshot for a resource.
type tsvExporter interface {
	Generate(resource domain.Resource) (int, error)
}

// Options select between incremental and full runs. UpdateFrom bounds
// incremental runs to records modified on or after that date.
type Options struct {
	AllWorks    bool
	AllCreators bool
	UpdateFrom  string
}

// ErrRunInProgress reports that a pipeline run was refused because a
// previous run has not finished. Resource syncs are not safe to overlap.
var ErrRunInProgress = errors.New("sync run already in progress")

// Syncer orchestrates one update run.
type Syncer struct {
	upstream *upstream.Client
	assets   assetProcessor
	cache    *cache.Store
	indexer  searchIndexer
	exporter tsvExporter
	opts     Options
	log      logger.Interface
	metrics  *metrics.Metrics
	running  atomic.Bool
}

// New creates a syncer.
func New(
	client *upstream.Client,
	assets assetProcessor,
	store *cache.Store,
	indexer searchIndexer,
	exporter tsvExporter,
	opts Options,
	log logger.Interface,
	m *metrics.Metrics,
) *Syncer {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Syncer{
		upstream: client,
		assets:   assets,
		cache:    store,
		indexer:  indexer,
		exporter: exporter,
		opts:     opts,
		log:      log,
		metrics:  m,
	}
}

// Run executes the full pipeline in publication order. Works are
// reconciled and exported before their index rebuild so searches never
// return a record the cache no longer serves. Only one run may be in
// flight at a time; an overlapping call returns ErrRunInProgress.
func (s *Syncer) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)

	s.log.Info("Starting to update the works API")
	if err := s.SyncWorks(ctx); err != nil {
		return err
	}
	if err := s.ReconcileWorks(ctx); err != nil {
		return err
	}
	if _, err := s.exporter.Generate(domain.Works); err != nil {
		return err
	}
	if _, _, err := s.indexer.Reindex(ctx, domain.Works); err != nil {
		return err
	}

	s.log.Info("Starting to update the audio API")
	if err := s.SyncAudio(ctx); err != nil {
		return err
	}
	if _, _, err := s.indexer.Reindex(ctx, domain.Audio); err != nil {
		return err
	}

	s.log.Info("Starting to update the constellations API")
	if err := s.SyncConstellations(ctx); err != nil {
		return err
	}
	if _, _, err := s.indexer.Reindex(ctx, domain.Constellations); err != nil {
		return err
	}

	s.log.Info("Starting to update the creators API")
	if err := s.SyncCreators(ctx); err != nil {
		return err
	}
	if _, err := s.exporter.Generate(domain.Creators); err != nil {
		return err
	}
	if _, _, err := s.indexer.Reindex(ctx, domain.Creators); err != nil {
		return err
	}
	return nil
}

// ReindexAll rebuilds every resource's search index from the cache
// without touching upstream.
func (s *Syncer) ReindexAll(ctx context.Context) error {
	for _, resource := range domain.Resources {
		if _, _, err := s.indexer.Reindex(ctx, resource); err != nil {
			return err
		}
	}
	return nil
}

// SyncWorks downloads works, incrementally unless AllWorks is set.
// Incremental runs finish with a full unfiltered pass over the index
// pages so pagination stays consistent with the whole collection.
func (s *Syncer) SyncWorks(ctx context.Context) error {
	params := s.upstream.DefaultParams()
	if s.opts.AllWorks {
		s.log.Info("Downloading all works, this will take a while")
	} else {
		s.log.Info("Updating works", "since", s.opts.UpdateFrom)
		params.Set("date_modified__gte", s.opts.UpdateFrom)
	}

	if err := s.syncResource(ctx, domain.Works, params, nil); err != nil {
		return err
	}

	if !s.opts.AllWorks {
		return s.saveIndexPages(ctx, domain.Works)
	}
	return nil
}

// SyncAudio downloads every audio record and rebuilds the label id
// lookup used by the lens readers in the museum.
func (s *Syncer) SyncAudio(ctx context.Context) error {
	labels := map[string]int{}
	err := s.syncResource(ctx, domain.Audio, s.upstream.DefaultParams(), func(page *domain.Page) {
		collectAudioLabels(page, labels)
	})
	if err != nil {
		return err
	}
	if err := s.cache.SaveAudioLabels(labels); err != nil {
		return err
	}
	s.log.Info("Saved audio labels lookup", "labels", len(labels))
	return nil
}

// SyncConstellations downloads every constellation.
func (s *Syncer) SyncConstellations(ctx context.Context) error {
	return s.syncResource(ctx, domain.Constellations, s.upstream.DefaultParams(), nil)
}

// SyncCreators downloads creators, incrementally unless AllCreators is
// set, with the same trailing index-page pass as works.
func (s *Syncer) SyncCreators(ctx context.Context) error {
	params := s.upstream.DefaultParams()
	if s.opts.AllCreators {
		s.log.Info("Downloading all creators, this will take a while")
	} else {
		s.log.Info("Updating creators", "since", s.opts.UpdateFrom)
		params.Set("date_modified__gte", s.opts.UpdateFrom)
	}

	if err := s.syncResource(ctx, domain.Creators, params, nil); err != nil {
		return err
	}

	if !s.opts.AllCreators {
		return s.saveIndexPages(ctx, domain.Creators)
	}
	return nil
}

// syncResource walks upstream pages for one resource: each page is
// processed and cached, then every listed record is re-fetched
// individually so the cached detail file carries the full payload.
func (s *Syncer) syncResource(
	ctx context.Context,
	resource domain.Resource,
	params url.Values,
	onPage func(*domain.Page),
) error {
	pageNumber := 1
	saved := 0
	for {
		params.Set("page", strconv.Itoa(pageNumber))
		page, err := s.upstream.Page(ctx, resource, params)
		if err != nil {
			return err
		}

		listing := domain.ListingDocument(page)
		if err := s.assets.Process(ctx, listing); err != nil {
			return err
		}
		if err := s.cache.SaveIndexPage(resource, page, pageNumber); err != nil {
			return err
		}
		if onPage != nil {
			onPage(page)
		}

		count, err := s.saveRecords(ctx, resource, page)
		if err != nil {
			return err
		}
		saved += count

		next, ok := upstream.NextPageParam(page.Next)
		if !ok {
			break
		}
		pageNumber, err = strconv.Atoi(next)
		if err != nil {
			return fmt.Errorf("unexpected next page %q for %s: %w", next, resource, err)
		}
	}
	s.log.Info("Finished downloading", "resource", resource, "saved", saved)
	return nil
}

// saveRecords re-fetches and caches the full record for every listing
// entry on the page.
func (s *Syncer) saveRecords(ctx context.Context, resource domain.Resource, page *domain.Page) (int, error) {
	saved := 0
	for _, result := range page.Results {
		id, ok := result.ID()
		if !ok {
			s.log.Warn("Skipping listing entry without an id", "resource", resource)
			continue
		}
		record, err := s.upstream.RecordByID(ctx, resource, id)
		if err != nil {
			return saved, err
		}
		doc := domain.SingleDocument(record)
		if err := s.assets.Process(ctx, doc); err != nil {
			return saved, err
		}
		if err := s.cache.SaveRecord(resource, record); err != nil {
			return saved, err
		}
		s.metrics.RecordsSynced.WithLabelValues(string(resource)).Inc()
		saved++
	}
	return saved, nil
}

// saveIndexPages re-saves every index page unfiltered, so incremental
// runs still publish pagination covering the whole collection.
func (s *Syncer) saveIndexPages(ctx context.Context, resource domain.Resource) error {
	s.log.Info("Saving all list index files", "resource", resource)
	params := s.upstream.DefaultParams()
	pageNumber := 1
	for {
		params.Set("page", strconv.Itoa(pageNumber))
		page, err := s.upstream.Page(ctx, resource, params)
		if err != nil {
			return err
		}
		listing := domain.ListingDocument(page)
		if err := s.assets.Process(ctx, listing); err != nil {
			return err
		}
		if err := s.cache.SaveIndexPage(resource, page, pageNumber); err != nil {
			return err
		}

		next, ok := upstream.NextPageParam(page.Next)
		if !ok {
			return nil
		}
		pageNumber, err = strconv.Atoi(next)
		if err != nil {
			return fmt.Errorf("unexpected next page %q for %s: %w", next, resource, err)
		}
	}
}

// ReconcileWorks removes works upstream has unpublished: their cached
// files, their public bucket assets, and their search documents. File
// removal failures are logged and skipped so one bad file cannot stall
// the run.
func (s *Syncer) ReconcileWorks(ctx context.Context) error {
	params := s.upstream.DefaultParams()
	params.Set("unpublished", "true")
	if s.opts.AllWorks {
		s.log.Info("Deleting all unpublished works")
	} else {
		s.log.Info("Deleting unpublished works", "since", s.opts.UpdateFrom)
		params.Set("date_modified__gte", s.opts.UpdateFrom)
	}

	var deleteIDs []int
	pageNumber := 1
	for {
		params.Set("page", strconv.Itoa(pageNumber))
		page, err := s.upstream.Page(ctx, domain.Works, params)
		if err != nil {
			return err
		}
		for _, result := range page.Results {
			if !result.Bool("unpublished") {
				continue
			}
			id, ok := result.ID()
			if !ok {
				continue
			}
			deleteIDs = append(deleteIDs, id)
			if err := s.assets.DeleteAssets(ctx, domain.SingleDocument(result)); err != nil {
				return err
			}
		}

		next, ok := upstream.NextPageParam(page.Next)
		if !ok {
			break
		}
		pageNumber, err = strconv.Atoi(next)
		if err != nil {
			return fmt.Errorf("unexpected next page %q for works: %w", next, err)
		}
	}

	deleted := 0
	for _, id := range deleteIDs {
		if err := s.cache.DeleteRecord(domain.Works, id); err != nil {
			s.log.Error("Couldn't delete cached work", "id", id, "error", err)
		} else {
			deleted++
			s.metrics.RecordsDeleted.WithLabelValues(string(domain.Works)).Inc()
		}
		if err := s.indexer.DeleteDocument(ctx, domain.Works, id); err != nil {
			s.log.Error("Couldn't delete work search document", "id", id, "error", err)
		}
	}
	s.log.Info("Finished deleting works", "deleted", deleted, "candidates", len(deleteIDs))
	return nil
}

// collectAudioLabels maps each audio's first work label id to the
// audio id. Records without the nested shape are skipped.
func collectAudioLabels(page *domain.Page, labels map[string]int) {
	for _, audio := range page.Results {
		id, ok := audio.ID()
		if !ok {
			continue
		}
		work, ok := audio["work"].(map[string]any)
		if !ok {
			continue
		}
		workLabels, ok := work["labels"].([]any)
		if !ok || len(workLabels) == 0 {
			continue
		}
		labels[labelKey(workLabels[0])] = id
	}
}

func labelKey(value any) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
