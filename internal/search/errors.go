package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// The search error taxonomy the serving layer maps to HTTP statuses.
var (
	// ErrNoResults covers both a missing resource index and a query with
	// no matches.
	ErrNoResults = errors.New("no search results")
	// ErrTimeout marks a search that ran out of time.
	ErrTimeout = errors.New("search timed out")
	// ErrUnavailable marks an unreachable or failing search backend.
	ErrUnavailable = errors.New("search unavailable")
)

// QueryError carries the engine's root-cause reason for a malformed query.
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return "query error: " + e.Reason
}

// classifyTransportError maps client-side failures onto the taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// classifyResponseError maps an Elasticsearch error response onto the
// taxonomy, extracting the root-cause reason for bad requests where the
// body allows it.
func classifyResponseError(res *esapi.Response, fallbackReason string) error {
	body, _ := io.ReadAll(res.Body)

	switch res.StatusCode {
	case http.StatusNotFound:
		return ErrNoResults
	case http.StatusBadRequest:
		return &QueryError{Reason: rootCauseReason(body, fallbackReason)}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}
}

// rootCauseReason digs the first root-cause reason out of an error body.
func rootCauseReason(body []byte, fallback string) string {
	var parsed struct {
		Error struct {
			RootCause []struct {
				Reason string `json:"reason"`
			} `json:"root_cause"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Error.RootCause) > 0 && parsed.Error.RootCause[0].Reason != "" {
		return parsed.Error.RootCause[0].Reason
	}
	return fallback
}
