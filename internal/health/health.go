package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type Checkable interface {
	Health(context.Context) models.ServiceHealthResp
}

// HealthResp, app health response
type HealthResp struct {
	Status   string                     `json:"status"` // general app health
	Services []models.ServiceHealthResp `json:"services"`
} // .HealthResp

type SystemHealthCheck struct {
	mu       sync.RWMutex
	Services []Checkable
}

func (hc *SystemHealthCheck) Register(c ...Checkable) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.Services = append(hc.Services, c...)
}

// Check runs every registered check. The app is DEGRADED when any dependency
// is DOWN.
func (hc *SystemHealthCheck) Check(ctx context.Context) HealthResp {
	hc.mu.RLock()
	services := append([]Checkable(nil), hc.Services...)
	hc.mu.RUnlock()

	resp := HealthResp{Status: models.STATUS_UP, Services: []models.ServiceHealthResp{}}
	for _, check := range services {
		sr := check.Health(ctx)
		resp.Services = append(resp.Services, sr)
		if sr.Status == models.STATUS_DOWN {
			resp.Status = models.STATUS_DEGRADED
		} // .if
	} // .for
	return resp
}

// ServeHTTP responds to /health with the health of the app including dependency services
func (hc *SystemHealthCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jsonResp, err := json.Marshal(hc.Check(r.Context()))
	if err != nil {
		errMsg := "error marshal json for health response"
		logger.Error(errMsg, "error", err.Error())
		http.Error(w, errMsg, http.StatusInternalServerError)
		return
	} // .if

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonResp)
} // .ServeHTTP

var DefaultSystemHealthCheck = &SystemHealthCheck{}

func Register(c ...Checkable) {
	DefaultSystemHealthCheck.Register(c...)
}

func Handler() http.Handler {
	return DefaultSystemHealthCheck
}
