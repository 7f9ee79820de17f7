package middleware

import (
	"context"
	"crypto/md5"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type key int

// UploadID holds the trace id derived from an upload id.
var UploadID key

const uploadIDVar = "uploadId"

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		otelhttp.NewMiddleware(fmt.Sprintf("%s %s", r.Method, routeName(r)))(next).ServeHTTP(rw, r)
	})
}

// AddUploadIDContext ties requests for one upload to the trace its reports
// were processed under.
func AddUploadIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if uploadID := mux.Vars(r)[uploadIDVar]; uploadID != "" {
			id := trace.TraceID(md5.Sum([]byte(uploadID)))
			logger.Debug("tracing upload", "upload_id", uploadID, "trace_id", id.String())
			r = r.WithContext(context.WithValue(r.Context(), UploadID, id))
		}
		next.ServeHTTP(rw, r)
	})
}

// routeName keeps span names low cardinality by using the route template.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
