package upstream_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ACMILabs/acmi-api/internal/config"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, endpoint string, retries int) *upstream.Client {
	t.Helper()
	return upstream.New(config.UpstreamConfig{
		Endpoint: endpoint,
		Retries:  retries,
		Timeout:  5 * time.Second,
		PageSize: 10,
	}, logger.NewNoop(), nil)
}

func TestPage_MergesDefaultParams(t *testing.T) {
	t.Parallel()

	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		_, _ = w.Write([]byte(`{"count":1,"next":null,"previous":null,"results":[{"id":7}]}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 3)
	params := client.DefaultParams()
	params.Set("date_modified__gte", "2024-03-01")
	params.Set("page", "2")

	page, err := client.Page(context.Background(), domain.Works, params)
	require.NoError(t, err)

	assert.Equal(t, "10", got.Get("page_size"))
	assert.Equal(t, "false", got.Get("unpublished"))
	assert.Equal(t, "2024-03-01", got.Get("date_modified__gte"))
	assert.Equal(t, "2", got.Get("page"))
	require.Len(t, page.Results, 1)
	id, ok := page.Results[0].ID()
	require.True(t, ok)
	assert.Equal(t, 7, id)
}

func TestPage_RetriesExactlyToBound(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newClient(t, server.URL, 3)
	_, err := client.Page(context.Background(), domain.Works, nil)

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPage_RecoversWithinBudget(t *testing.T) {
	t.Parallel()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"count":0,"next":null,"previous":null,"results":[]}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 3)
	page, err := client.Page(context.Background(), domain.Audio, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Empty(t, page.Results)
}

func TestRecordByID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works/42/", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":42,"title":"Mad Max"}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL, 3)
	record, err := client.RecordByID(context.Background(), domain.Works, 42)

	require.NoError(t, err)
	assert.Equal(t, "Mad Max", record["title"])
}

func TestNextPageParam(t *testing.T) {
	t.Parallel()

	next := "https://xos.example.org/api/works/?date_modified__gte=2024-03-01&page=3&page_size=10"
	page, ok := upstream.NextPageParam(&next)
	require.True(t, ok)
	assert.Equal(t, "3", page)

	_, ok = upstream.NextPageParam(nil)
	assert.False(t, ok)

	noPage := "https://xos.example.org/api/works/"
	_, ok = upstream.NextPageParam(&noPage)
	assert.False(t, ok)
}
