// Package search wraps Elasticsearch behind the narrow contract the API
// needs: per-resource indexing, deletion and querying.
package search

import (
	"context"
	"fmt"
	"io"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/ACMILabs/acmi-api/internal/config"
)

// Client wraps the Elasticsearch client. Each resource type has its own
// index named after it.
type Client struct {
	esClient *es.Client
}

// NewClient creates an Elasticsearch client. A cloud id plus API key takes
// precedence over the plain host address used in development.
func NewClient(cfg config.SearchConfig) (*Client, error) {
	esCfg := es.Config{}
	if cfg.CloudID != "" {
		esCfg.CloudID = cfg.CloudID
		esCfg.APIKey = cfg.APIKey
	} else {
		esCfg.Addresses = []string{cfg.Host}
	}

	esClient, err := es.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{esClient: esClient}, nil
}

// ES exposes the underlying client for the indexer and query service.
func (c *Client) ES() *es.Client {
	return c.esClient
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.esClient.Ping(c.esClient.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("elasticsearch ping failed: %s", string(body))
	}
	return nil
}
