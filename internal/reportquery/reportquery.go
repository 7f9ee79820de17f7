package reportquery

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/gorilla/mux"
) // .import

// Service reads stored reports back for one upload.
type Service struct {
	Store storage.Store
}

func (s *Service) ReportsForUpload(ctx context.Context, uploadID string) ([]models.Report, error) {
	return storage.QueryAs[models.Report](ctx, s.Store.Reports, storage.NewQuery(uploadID).Where("uploadId", uploadID))
}

func (s *Service) DeadLettersForUpload(ctx context.Context, uploadID string) ([]models.ReportDeadLetter, error) {
	return storage.QueryAs[models.ReportDeadLetter](ctx, s.Store.DeadLetters, storage.NewQuery(uploadID).Where("uploadId", uploadID))
}

// RegisterRoutes adds the read only report routes to r.
func (s *Service) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/report/uploadId/{uploadId}", s.reportsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/report/dlq/uploadId/{uploadId}", s.deadLettersHandler).Methods(http.MethodGet)
}

func (s *Service) reportsHandler(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["uploadId"]
	reports, err := s.ReportsForUpload(r.Context(), id)
	respond(rw, reports, err)
}

func (s *Service) deadLettersHandler(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["uploadId"]
	dls, err := s.DeadLettersForUpload(r.Context(), id)
	respond(rw, dls, err)
}

func respond[T any](rw http.ResponseWriter, items []T, err error) {
	if err != nil {
		http.Error(rw, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(items) == 0 {
		http.Error(rw, "no reports found", http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(rw)
	enc.Encode(items)
}
