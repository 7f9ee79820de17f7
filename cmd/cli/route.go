package cli

import (
	"net/http"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/middleware"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/reportquery"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter serves the operational endpoints and the report read routes.
func NewRouter(query *reportquery.Service) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.AddUploadIDContext, middleware.TracingMiddleware)

	r.Handle("/", appconfig.Handler()).Methods(http.MethodGet)
	r.Handle("/health", health.Handler()).Methods(http.MethodGet)
	r.Handle("/version", &VersionHandler{}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	query.RegisterRoutes(r)
	return r
}
