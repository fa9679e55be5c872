package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ACMILabs/acmi-api/internal/cache"
	"github.com/ACMILabs/acmi-api/internal/domain"
	"github.com/ACMILabs/acmi-api/internal/logger"
	"github.com/ACMILabs/acmi-api/internal/search"
)

const acknowledgement = "ACMI would like to acknowledge the Traditional Custodians of the lands " +
	"and waterways of greater Melbourne, the people of the Kulin Nation, and " +
	"recognise that ACMI is located on the lands of the Wurundjeri people. " +
	"First Nations (Aboriginal and Torres Strait Islander) people should be aware " +
	"that this website may contain images, voices, or names of deceased persons in " +
	"photographs, film, audio recordings or text."

// Handler serves the public API from the file cache and the search
// indices.
type Handler struct {
	cache      *cache.Store
	query      *search.QueryService
	publicBase string
	log        logger.Interface

	// routes is the sorted route list shown on the welcome page, set
	// once at registration time.
	routes []string
}

// NewHandler creates a handler over the cache and query service. The
// query service may be nil when search is not configured.
func NewHandler(store *cache.Store, query *search.QueryService, publicBase string, log logger.Interface) *Handler {
	return &Handler{cache: store, query: query, publicBase: publicBase, log: log}
}

// Welcome lists every route the API serves.
func (h *Handler) Welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":         "Welcome to the ACMI Public API.",
		"api":             h.routes,
		"acknowledgement": acknowledgement,
	})
}

// Listing serves one cached index page of a resource.
func (h *Handler) Listing(resource domain.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if resource == domain.Audio {
			if labels := c.Query("labels"); labels != "" {
				h.audioByLabels(c, labels)
				return
			}
		}

		body, err := h.cache.ReadIndexPage(resource, c.Query("page"))
		if err != nil {
			message := "That " + titleCase(string(resource)) + " list doesn't exist, sorry."
			if !errors.Is(err, cache.ErrCacheMiss) {
				h.log.Error("Reading index page failed", "resource", resource, "error", err)
			}
			c.JSON(http.StatusNotFound, gin.H{"message": message})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

// Single serves one cached record.
func (h *Handler) Single(resource domain.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSuffix(c.Param("id"), "/")
		body, err := h.cache.ReadRecord(resource, id)
		if err != nil {
			message := resource.Singular() + " ID " + id + " doesn't exist, sorry."
			if !errors.Is(err, cache.ErrCacheMiss) {
				h.log.Error("Reading record failed", "resource", resource, "id", id, "error", err)
			}
			c.JSON(http.StatusNotFound, gin.H{"message": message})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}

// audioByLabels assembles an envelope of audio records for a comma
// separated list of label ids. Unknown labels are skipped.
func (h *Handler) audioByLabels(c *gin.Context, labels string) {
	envelope := gin.H{
		"count":    0,
		"next":     nil,
		"previous": nil,
	}
	results := []any{}
	for _, labelID := range strings.Split(labels, ",") {
		body, err := h.cache.AudioByLabel(labelID)
		if err != nil {
			if !errors.Is(err, cache.ErrCacheMiss) {
				h.log.Error("Audio label lookup failed", "label", labelID, "error", err)
			}
			continue
		}
		results = append(results, json.RawMessage(body))
	}
	envelope["count"] = len(results)
	envelope["results"] = results
	c.JSON(http.StatusOK, envelope)
}

// searchFilters document the query parameters on the no-query 400.
var searchFilters = []gin.H{{
	"field": "e.g. ?field=title&query=xos " +
		"Only search the title field for the query `xos`",
	"size":     "e.g. ?size=2 Search results page size. default: 20, limit: 50",
	"page":     "e.g. ?page=3 Return this page of the search results",
	"raw":      "e.g. ?raw=true Return the raw Elasticsearch results",
	"resource": "e.g. ?resource=works Returns only Work search results",
}}

// Search serves full-text and single-field search requests.
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Try adding a search query. e.g. /search/?query=xos",
			"filters": searchFilters,
		})
		return
	}
	if h.query == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": "Sorry, search is unavailable at the moment. Please try again later.",
		})
		return
	}

	resource, err := domain.ParseResource(c.DefaultQuery("resource", string(domain.Works)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	size, _ := strconv.Atoi(c.Query("size"))
	page, _ := strconv.Atoi(c.Query("page"))
	raw, _ := strconv.ParseBool(c.Query("raw"))

	result, err := h.query.Search(c.Request.Context(), search.Request{
		Resource:   resource,
		Query:      query,
		Field:      c.Query("field"),
		Size:       size,
		Page:       page,
		Raw:        raw,
		RequestURL: h.requestURL(c),
	})
	if err != nil {
		h.searchError(c, query, err)
		return
	}

	if result.Envelope != nil {
		c.JSON(http.StatusOK, result.Envelope)
		return
	}
	c.Data(http.StatusOK, "application/json", result.Raw)
}

// searchError maps the search error taxonomy onto response codes.
func (h *Handler) searchError(c *gin.Context, query string, err error) {
	var queryErr *search.QueryError
	switch {
	case errors.Is(err, search.ErrNoResults):
		c.JSON(http.StatusNotFound, gin.H{
			"message": "No results found for " + query + ", sorry.",
		})
	case errors.As(err, &queryErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": queryErr.Reason})
	case errors.Is(err, search.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"message": "Sorry, your search request timed out. Please try again later.",
		})
	default:
		h.log.Error("Search failed", "query", query, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"message": "Sorry, search is unavailable at the moment. Please try again later.",
		})
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// requestURL rebuilds the public URL of the current request for
// pagination links.
func (h *Handler) requestURL(c *gin.Context) *url.URL {
	base, err := url.Parse(h.publicBase)
	if err != nil {
		return c.Request.URL
	}
	base.Path = c.Request.URL.Path
	base.RawQuery = c.Request.URL.RawQuery
	return base
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
