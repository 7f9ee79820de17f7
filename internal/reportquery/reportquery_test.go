package reportquery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage/memory"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore("Reports", "ReportsDeadLetter")
	for _, r := range []models.Report{
		{ID: "r1", ReportID: "r1", UploadID: "u1", StageInfo: models.ReportStageInfo{Service: "upload", Action: "upload-status"}, Timestamp: time.Now()},
		{ID: "r2", ReportID: "r2", UploadID: "u1", StageInfo: models.ReportStageInfo{Service: "upload", Action: "upload-completed"}, Timestamp: time.Now()},
		{ID: "r3", ReportID: "r3", UploadID: "u2", StageInfo: models.ReportStageInfo{Service: "upload", Action: "upload-status"}, Timestamp: time.Now()},
	} {
		require.True(t, store.Reports.CreateItem(ctx, r.ID, r, r.UploadID).Ok())
	}
	dl := models.ReportDeadLetter{ID: "d1", ReportID: "d1", UploadID: "u2", DeadLetterReasons: []string{"schema: $: missing properties"}, ValidationSchemas: []string{}}
	require.True(t, store.DeadLetters.CreateItem(ctx, dl.ID, dl, dl.UploadID).Ok())

	router := mux.NewRouter()
	(&Service{Store: store}).RegisterRoutes(router)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/report/uploadId/u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reports []models.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reports))
	assert.Len(t, reports, 2)

	resp, err = http.Get(ts.URL + "/api/report/dlq/uploadId/u2")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dls []models.ReportDeadLetter
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dls))
	require.Len(t, dls, 1)
	assert.Equal(t, dl.DeadLetterReasons, dls[0].DeadLetterReasons)

	resp, err = http.Get(ts.URL + "/api/report/dlq/uploadId/u1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/report/uploadId/u1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
