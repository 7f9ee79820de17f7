package serverdex

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
) // .import

const readHeaderTimeout = 10 * time.Second

// ServerDex serves the report sink's operational and read routes.
type ServerDex struct {
	AppConfig appconfig.AppConfig
	Handler   http.Handler

	logger *slog.Logger
} // .ServerDex

// New returns a server for handler ready to serve on the configured port.
func New(appConfig appconfig.AppConfig, handler http.Handler) (ServerDex, error) {

	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger := sloger.With("pkg", pkgParts[len(pkgParts)-1])

	return ServerDex{
		AppConfig: appConfig,
		Handler:   handler,
		logger:    logger,
	}, nil // .return

} // New

// HttpServer wraps the handler with request metrics and binds the port.
func (sd *ServerDex) HttpServer() *http.Server {
	sd.logger.Info("configuring http server", "port", sd.AppConfig.ServerPort)

	return &http.Server{

		Addr: ":" + sd.AppConfig.ServerPort,

		Handler:           metrics.TrackHTTP(sd.Handler),
		ReadHeaderTimeout: readHeaderTimeout,
	} // .httpServer
} // .HttpServer
