// Package upstream implements the client for the private XOS collection
// API: a paginated, retrying HTTP accessor.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ACMILabs/acmi-api/internal/config"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/metrics"
	"github.com/ACMILabs/acmi-api/internal/retry"
)

// Client fetches resource pages and records from the upstream API.
type Client struct {
	base            string
	httpClient      *http.Client
	retries         int
	pageSize        int
	includeExternal bool
	log             logger.Interface
	metrics         *metrics.Metrics
}

// New creates an upstream client from configuration.
func New(cfg config.UpstreamConfig, log logger.Interface, m *metrics.Metrics) *Client {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Client{
		base:            cfg.Endpoint,
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		retries:         cfg.Retries,
		pageSize:        cfg.PageSize,
		includeExternal: cfg.IncludeExternal,
		log:             log,
		metrics:         m,
	}
}

// DefaultParams returns the per-resource default query parameters. Callers
// merge their own parameters (page, date bound, unpublished) over these.
func (c *Client) DefaultParams() url.Values {
	return url.Values{
		"page_size":   []string{strconv.Itoa(c.pageSize)},
		"unpublished": []string{"false"},
		"external":    []string{strconv.FormatBool(c.includeExternal)},
	}
}

// Page fetches one listing page for the resource. A nil params uses the
// defaults.
func (c *Client) Page(ctx context.Context, resource domain.Resource, params url.Values) (*domain.Page, error) {
	if params == nil {
		params = c.DefaultParams()
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/", resource), params)
	if err != nil {
		return nil, err
	}

	var page domain.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", resource, err)
	}
	return &page, nil
}

// RecordByID fetches the full record for one item.
func (c *Client) RecordByID(ctx context.Context, resource domain.Resource, id int) (domain.Record, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%d/", resource, id), c.DefaultParams())
	if err != nil {
		return nil, err
	}

	var record domain.Record
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode %s record %d: %w", resource, id, err)
	}
	return record, nil
}

// get performs a GET with bounded retry. HTTP errors, connection errors and
// timeouts all count against the same budget; exhausting it is fatal to the
// caller's sync pass.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint, err := url.JoinPath(c.base, path)
	if err != nil {
		return nil, fmt.Errorf("build upstream url: %w", err)
	}

	var body []byte
	attempt := 0
	err = retry.Do(ctx, retry.Config{Attempts: c.retries}, func() error {
		attempt++
		if attempt > 1 {
			c.metrics.UpstreamRetries.Inc()
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if reqErr != nil {
			return reqErr
		}
		req.URL.RawQuery = params.Encode()

		res, doErr := c.httpClient.Do(req)
		if doErr != nil {
			c.log.Warn("Upstream request failed, retrying",
				"endpoint", endpoint,
				"attempt", attempt,
				"error", doErr,
			)
			return doErr
		}
		defer func() {
			_ = res.Body.Close()
		}()

		if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
			c.log.Warn("Upstream returned error status, retrying",
				"endpoint", endpoint,
				"status", res.StatusCode,
				"attempt", attempt,
			)
			return fmt.Errorf("upstream status %d for %s", res.StatusCode, endpoint)
		}

		body, reqErr = io.ReadAll(res.Body)
		return reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	return body, nil
}

// NextPageParam extracts the page number from an upstream next link. Only
// the page parameter is reused; resubmitting the full parameter set keeps
// filters such as the date bound across pages, which the opaque next URL
// would silently drop.
func NextPageParam(next *string) (string, bool) {
	if next == nil || *next == "" {
		return "", false
	}
	u, err := url.Parse(*next)
	if err != nil {
		return "", false
	}
	page := u.Query().Get("page")
	if page == "" {
		return "", false
	}
	return page, true
}
