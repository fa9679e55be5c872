package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ACMILabs/acmi-api/internal/config"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeEngine starts an httptest server standing in for Elasticsearch.
// The product header satisfies the client's compatibility check.
func newFakeEngine(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func newQueryService(t *testing.T, engine *httptest.Server) *search.QueryService {
	t.Helper()
	client, err := search.NewClient(config.SearchConfig{Host: engine.URL})
	require.NoError(t, err)
	return search.NewQueryService(client, logger.NewNoop())
}

const searchHitsBody = `{
	"took": 4,
	"hits": {
		"total": {"value": 2},
		"max_score": 1.5,
		"hits": [
			{"_source": {"id": 1, "title": "Mad Max"}},
			{"_source": {"id": 2, "title": "Mad Max 2"}}
		]
	}
}`

func TestOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		page, size, want int
	}{
		{page: 1, size: 20, want: 0},
		{page: 2, size: 20, want: 20},
		{page: 3, size: 10, want: 20},
		{page: 0, size: 10, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, search.Offset(tt.page, tt.size), "page=%d size=%d", tt.page, tt.size)
	}
}

func TestClampSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, search.DefaultSize, search.ClampSize(0))
	assert.Equal(t, 2, search.ClampSize(2))
	assert.Equal(t, search.MaxSize, search.ClampSize(200))
}

func TestPageLink_ReplacesOnlyPage(t *testing.T) {
	t.Parallel()

	reqURL, err := url.Parse("https://api.acmi.net.au/search/?query=mad+max&field=title&size=10&page=3")
	require.NoError(t, err)

	link := search.PageLink(reqURL, 4)
	require.NotNil(t, link)

	parsed, err := url.Parse(*link)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "4", query.Get("page"))
	assert.Equal(t, "mad max", query.Get("query"))
	assert.Equal(t, "title", query.Get("field"))
	assert.Equal(t, "10", query.Get("size"))
}

func TestSearch_FormatsEnvelope(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchHitsBody))
	})
	service := newQueryService(t, engine)

	reqURL, _ := url.Parse("https://api.acmi.net.au/search/?query=mad")
	result, err := service.Search(context.Background(), search.Request{
		Resource:   domain.Works,
		Query:      "mad",
		Page:       1,
		RequestURL: reqURL,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Envelope)

	envelope := result.Envelope
	assert.Equal(t, 2, envelope.Count)
	assert.Equal(t, 4, envelope.Took)
	require.NotNil(t, envelope.MaxScore)
	assert.InDelta(t, 1.5, *envelope.MaxScore, 0.001)
	require.Len(t, envelope.Results, 2)

	require.NotNil(t, envelope.Next)
	assert.Contains(t, *envelope.Next, "page=2")
	assert.Contains(t, *envelope.Next, "query=mad")
	assert.Nil(t, envelope.Previous, "page 1 has no previous")
}

func TestSearch_MiddlePageLinks(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchHitsBody))
	})
	service := newQueryService(t, engine)

	reqURL, _ := url.Parse("https://api.acmi.net.au/search/?query=mad&page=3&size=10")
	result, err := service.Search(context.Background(), search.Request{
		Resource:   domain.Works,
		Query:      "mad",
		Page:       3,
		Size:       10,
		RequestURL: reqURL,
	})
	require.NoError(t, err)

	require.NotNil(t, result.Envelope.Next)
	assert.Contains(t, *result.Envelope.Next, "page=4")
	require.NotNil(t, result.Envelope.Previous)
	assert.Contains(t, *result.Envelope.Previous, "page=2")
}

func TestSearch_FieldModeUsesMatchQueryBody(t *testing.T) {
	t.Parallel()

	var body map[string]any
	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		_, _ = w.Write([]byte(searchHitsBody))
	})
	service := newQueryService(t, engine)

	_, err := service.Search(context.Background(), search.Request{
		Resource: domain.Works,
		Query:    "mad max",
		Field:    "title",
		Page:     2,
		Size:     10,
	})
	require.NoError(t, err)

	require.NotNil(t, body)
	assert.Equal(t, float64(10), body["size"])
	assert.Equal(t, float64(10), body["from"])
	query := body["query"].(map[string]any)
	match := query["match"].(map[string]any)
	assert.Equal(t, "mad max", match["title"])
}

func TestSearch_RawReturnsEngineBody(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(searchHitsBody))
	})
	service := newQueryService(t, engine)

	result, err := service.Search(context.Background(), search.Request{
		Resource: domain.Works,
		Query:    "mad",
		Raw:      true,
	})
	require.NoError(t, err)
	assert.Nil(t, result.Envelope)
	assert.JSONEq(t, searchHitsBody, string(result.Raw))
}

func TestSearch_NoMatches(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"took":1,"hits":{"total":{"value":0},"max_score":null,"hits":[]}}`))
	})
	service := newQueryService(t, engine)

	_, err := service.Search(context.Background(), search.Request{Resource: domain.Works, Query: "zzz"})
	assert.ErrorIs(t, err, search.ErrNoResults)
}

func TestSearch_ErrorTaxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{
			name:    "missing index is no results",
			status:  http.StatusNotFound,
			body:    `{"error":{"root_cause":[{"reason":"no such index [works]"}]}}`,
			wantErr: search.ErrNoResults,
		},
		{
			name:    "gateway timeout",
			status:  http.StatusGatewayTimeout,
			body:    `{}`,
			wantErr: search.ErrTimeout,
		},
		{
			name:    "server error is unavailable",
			status:  http.StatusInternalServerError,
			body:    `{}`,
			wantErr: search.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			service := newQueryService(t, engine)

			_, err := service.Search(context.Background(), search.Request{Resource: domain.Works, Query: "mad"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSearch_MalformedQueryCarriesRootCause(t *testing.T) {
	t.Parallel()

	engine := newFakeEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"root_cause":[{"reason":"Failed to parse query [mad AND]"}]}}`))
	})
	service := newQueryService(t, engine)

	_, err := service.Search(context.Background(), search.Request{Resource: domain.Works, Query: "mad AND"})

	var queryErr *search.QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, "Failed to parse query [mad AND]", queryErr.Reason)
}
