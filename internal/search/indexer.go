package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ACMILabs/acmi-api/internal/cache"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/metrics"
)

const reindexLogEvery = 1000

// Indexer maintains the per-resource search indices from the cache.
type Indexer struct {
	client  *Client
	cache   *cache.Store
	log     logger.Interface
	metrics *metrics.Metrics
}

// NewIndexer creates an indexer over the given cache.
func NewIndexer(client *Client, store *cache.Store, log logger.Interface, m *metrics.Metrics) *Indexer {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Indexer{client: client, cache: store, log: log, metrics: m}
}

// IndexRecord writes one record into the resource's index, keyed by its
// id, with the unparsable nested date field stripped.
func (ix *Indexer) IndexRecord(ctx context.Context, resource domain.Resource, record domain.Record) error {
	id, ok := record.ID()
	if !ok {
		return fmt.Errorf("record for %s has no id", resource)
	}

	stripProductionDates(record)

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode search document %d: %w", id, err)
	}

	esClient := ix.client.ES()
	res, err := esClient.Index(
		string(resource),
		bytes.NewReader(body),
		esClient.Index.WithContext(ctx),
		esClient.Index.WithDocumentID(strconv.Itoa(id)),
	)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return classifyResponseError(res, fmt.Sprintf("indexing %d failed", id))
	}

	ix.metrics.DocsIndexed.WithLabelValues(string(resource)).Inc()
	return nil
}

// DeleteDocument removes a record's search document. A document that was
// never indexed is not an error.
func (ix *Indexer) DeleteDocument(ctx context.Context, resource domain.Resource, id int) error {
	esClient := ix.client.ES()
	res, err := esClient.Delete(
		string(resource),
		strconv.Itoa(id),
		esClient.Delete.WithContext(ctx),
	)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() && res.StatusCode != 404 {
		return classifyResponseError(res, fmt.Sprintf("deleting %d failed", id))
	}
	return nil
}

// Reindex rebuilds the resource's index from every cached record file.
// Failed documents are retried exactly once in a second pass; documents
// still failing are dropped with a log line. Returns the indexed and
// discovered counts so shrinkage is visible to operators.
func (ix *Indexer) Reindex(ctx context.Context, resource domain.Resource) (indexed, total int, err error) {
	paths, err := ix.cache.RecordFiles(resource)
	if err != nil {
		return 0, 0, err
	}
	total = len(paths)

	ix.log.Info("Updating the search index", "resource", resource, "files", total)

	var retries []domain.Record
	for _, path := range paths {
		record, loadErr := ix.cache.LoadRecord(path)
		if loadErr != nil {
			ix.log.Error("Skipping unreadable record file", "path", path, "error", loadErr)
			continue
		}

		if indexErr := ix.IndexRecord(ctx, resource, record); indexErr != nil {
			ix.log.Warn("Indexing failed, will retry", "path", path, "error", indexErr)
			retries = append(retries, record)
			continue
		}
		indexed++

		if indexed%reindexLogEvery == 0 {
			ix.log.Info("Reindex progress", "resource", resource, "indexed", indexed)
		}
	}

	for _, record := range retries {
		id, _ := record.ID()
		if indexErr := ix.IndexRecord(ctx, resource, record); indexErr != nil {
			ix.metrics.DocsDropped.WithLabelValues(string(resource)).Inc()
			ix.log.Error("Dropping document after failed retry", "resource", resource, "id", id, "error", indexErr)
			continue
		}
		indexed++
	}

	ix.log.Info("Finished indexing", "resource", resource, "indexed", indexed, "files", total)
	return indexed, total, nil
}

// stripProductionDates removes the date-only nested field Elasticsearch
// cannot parse from production date lists.
func stripProductionDates(record domain.Record) {
	dates, ok := record["production_dates"].([]any)
	if !ok {
		return
	}
	for _, item := range dates {
		if date, ok := item.(map[string]any); ok {
			delete(date, "date")
		}
	}
}
