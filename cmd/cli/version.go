package cli

import (
	"encoding/json"
	"net/http"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/version"
)

type VersionHandler struct{}

func (vh *VersionHandler) ServeHTTP(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(rw)
	enc.Encode(version.Get())
}
