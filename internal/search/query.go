package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
)

// Search result paging bounds.
const (
	DefaultSize = 20
	MaxSize     = 50
)

// Request is one search request after parameter parsing.
type Request struct {
	Resource domain.Resource
	Query    string
	// Field switches from full-text to exact single-field matching.
	Field string
	Size  int
	Page  int
	// Raw returns the engine response verbatim.
	Raw bool
	// RequestURL is the public request URL, the base for next/previous
	// links.
	RequestURL *url.URL
}

// Envelope mirrors the cached index page shape so serving code is
// shape-agnostic between cached pages and live search results.
type Envelope struct {
	Count    int             `json:"count"`
	Took     int             `json:"took"`
	MaxScore *float64        `json:"max_score"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []domain.Record `json:"results"`
}

// Result is either a formatted envelope or, for raw requests, the engine
// response bytes.
type Result struct {
	Envelope *Envelope
	Raw      json.RawMessage
}

// QueryService executes searches against the per-resource indices.
type QueryService struct {
	client *Client
	log    logger.Interface
}

// NewQueryService creates a query service.
func NewQueryService(client *Client, log logger.Interface) *QueryService {
	return &QueryService{client: client, log: log}
}

// Offset converts a 1-based page to the engine's from offset.
func Offset(page, size int) int {
	if page <= 1 {
		return 0
	}
	return (page - 1) * size
}

// ClampSize applies the default and the hard per-page cap.
func ClampSize(size int) int {
	if size <= 0 {
		return DefaultSize
	}
	if size > MaxSize {
		return MaxSize
	}
	return size
}

// Search runs the request and formats the response. No matches and a
// missing index both surface ErrNoResults.
func (s *QueryService) Search(ctx context.Context, req Request) (*Result, error) {
	size := ClampSize(req.Size)
	page := req.Page
	if page < 1 {
		page = 1
	}
	offset := Offset(page, size)

	body, err := s.execute(ctx, req, size, offset)
	if err != nil {
		return nil, err
	}

	if req.Raw {
		return &Result{Raw: body}, nil
	}

	envelope, err := s.formatResults(body, req.RequestURL, page)
	if err != nil {
		return nil, err
	}
	if envelope.Count == 0 {
		return nil, ErrNoResults
	}
	return &Result{Envelope: envelope}, nil
}

// execute issues the engine request. The two query modes use different
// request shapes: a query-string search across all fields, or a match
// query against one field.
func (s *QueryService) execute(ctx context.Context, req Request, size, offset int) (json.RawMessage, error) {
	esClient := s.client.ES()
	index := string(req.Resource)

	if req.Field != "" {
		query := map[string]any{
			"size": size,
			"from": offset,
			"query": map[string]any{
				"match": map[string]any{
					req.Field: req.Query,
				},
			},
		}
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(query); err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}

		response, err := esClient.Search(
			esClient.Search.WithContext(ctx),
			esClient.Search.WithIndex(index),
			esClient.Search.WithBody(&buf),
		)
		return s.readResponse(response, err, req.Query)
	}

	response, err := esClient.Search(
		esClient.Search.WithContext(ctx),
		esClient.Search.WithIndex(index),
		esClient.Search.WithQuery(req.Query),
		esClient.Search.WithSize(size),
		esClient.Search.WithFrom(offset),
	)
	return s.readResponse(response, err, req.Query)
}

// readResponse drains the engine response, classifying failures onto the
// search error taxonomy.
func (s *QueryService) readResponse(res *esapi.Response, err error, query string) (json.RawMessage, error) {
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.IsError() {
		return nil, classifyResponseError(res, "Error in your query: "+query)
	}

	body, readErr := io.ReadAll(res.Body)
	if readErr != nil {
		return nil, fmt.Errorf("read search response: %w", readErr)
	}
	return body, nil
}

func (s *QueryService) formatResults(body json.RawMessage, requestURL *url.URL, page int) (*Envelope, error) {
	var parsed struct {
		Took int `json:"took"`
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			MaxScore *float64 `json:"max_score"`
			Hits     []struct {
				Source domain.Record `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	envelope := &Envelope{
		Count:    parsed.Hits.Total.Value,
		Took:     parsed.Took,
		MaxScore: parsed.Hits.MaxScore,
		Results:  make([]domain.Record, 0, len(parsed.Hits.Hits)),
	}
	for _, hit := range parsed.Hits.Hits {
		envelope.Results = append(envelope.Results, hit.Source)
	}

	if requestURL != nil {
		envelope.Next = PageLink(requestURL, page+1)
		if page > 1 {
			envelope.Previous = PageLink(requestURL, page-1)
		}
	}
	return envelope, nil
}

// PageLink rebuilds the request's own URL with only the page parameter
// replaced, preserving every other query parameter.
func PageLink(requestURL *url.URL, page int) *string {
	u := *requestURL
	query := u.Query()
	query.Set("page", strconv.Itoa(page))
	u.RawQuery = query.Encode()
	link := u.String()
	return &link
}
