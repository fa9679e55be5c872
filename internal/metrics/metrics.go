// Package metrics exposes prometheus counters for the sync and indexing
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline counters. One instance is shared by the
// orchestrator, migrator and indexer.
type Metrics struct {
	RecordsSynced   *prometheus.CounterVec
	RecordsDeleted  *prometheus.CounterVec
	AssetsCopied    prometheus.Counter
	AssetsSkipped   prometheus.Counter
	AssetsDeleted   prometheus.Counter
	AssetErrors     prometheus.Counter
	DocsIndexed     *prometheus.CounterVec
	DocsDropped     *prometheus.CounterVec
	UpstreamRetries prometheus.Counter
}

// New registers the pipeline counters with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsSynced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acmi_api_records_synced_total",
			Help: "Records fetched from upstream and written to the cache.",
		}, []string{"resource"}),
		RecordsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acmi_api_records_deleted_total",
			Help: "Unpublished records removed from the cache.",
		}, []string{"resource"}),
		AssetsCopied: factory.NewCounter(prometheus.CounterOpts{
			Name: "acmi_api_assets_copied_total",
			Help: "Assets copied to the public bucket.",
		}),
		AssetsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "acmi_api_assets_skipped_total",
			Help: "Assets already present at their destination key.",
		}),
		AssetsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "acmi_api_assets_deleted_total",
			Help: "Assets deleted from the public bucket.",
		}),
		AssetErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "acmi_api_asset_errors_total",
			Help: "Object store failures while migrating assets.",
		}),
		DocsIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acmi_api_documents_indexed_total",
			Help: "Documents successfully written to the search index.",
		}, []string{"resource"}),
		DocsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "acmi_api_documents_dropped_total",
			Help: "Documents dropped after failing the indexing retry pass.",
		}, []string{"resource"}),
		UpstreamRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "acmi_api_upstream_retries_total",
			Help: "Retried upstream requests.",
		}),
	}
}

// NewUnregistered returns metrics backed by a private registry, for tests
// and for components constructed without a live registry.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
