package middleware

import (
	"crypto/md5"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"
)

func TestAddUploadIDContext(t *testing.T) {
	var got any
	r := mux.NewRouter()
	r.Use(AddUploadIDContext, TracingMiddleware)
	r.HandleFunc("/api/report/uploadId/{uploadId}", func(rw http.ResponseWriter, r *http.Request) {
		got = r.Context().Value(UploadID)
	})
	r.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		got = r.Context().Value(UploadID)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/report/uploadId/abc", nil))
	if want := trace.TraceID(md5.Sum([]byte("abc"))); got != want {
		t.Errorf("got %v wanted %v", got, want)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if got != nil {
		t.Errorf("expected no upload id, got %v", got)
	}
}
