package api

import (
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ACMILabs/acmi-api/internal/domain"
)

// SetupRoutes configures all API routes. The welcome page's route list
// is collected from the engine after registration so it never drifts
// from what is actually served.
func SetupRoutes(router *gin.Engine, handler *Handler, registry *prometheus.Registry) {
	router.GET("/health", handler.Health)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	for _, resource := range domain.Resources {
		router.GET("/"+string(resource)+"/", handler.Listing(resource))
		router.GET("/"+string(resource)+"/:id/", handler.Single(resource))
	}
	router.GET("/search/", handler.Search)

	handler.routes = routeList(router)
	router.GET("/", handler.Welcome)
}

// routeList returns every registered path except the root, sorted.
func routeList(router *gin.Engine) []string {
	var routes []string
	for _, route := range router.Routes() {
		if route.Path == "/" {
			continue
		}
		routes = append(routes, route.Path)
	}
	sort.Strings(routes)
	return routes
}
