package cli

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/reports"
	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ts    *httptest.Server
	inbox string
)

func drop(t *testing.T, name, body string) {
	t.Helper()
	tmp := filepath.Join(inbox, name+".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(body), 0600))
	require.NoError(t, os.Rename(tmp, filepath.Join(inbox, name+".json")))
}

func eventually[T any](t *testing.T, path string) []T {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		if resp.StatusCode == http.StatusOK {
			var items []T
			err := json.NewDecoder(resp.Body).Decode(&items)
			resp.Body.Close()
			require.NoError(t, err)
			return items
		}
		resp.Body.Close()
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("nothing found at %s", path)
	return nil
}

func TestReportIsStoredAndQueryable(t *testing.T) {
	b, err := reports.NewBuilder[reports.UploadStatusContent]("upload", "upload-status", "cli-u1").
		SetDataStream("dextesting", "testevent1").
		SetContent(reports.UploadStatusContent{
			ReportContent: reports.ReportContent{SchemaName: "upload-status", SchemaVersion: "1.0.0"},
			Offset:        10,
			Size:          100,
		}).
		JSON()
	require.NoError(t, err)
	drop(t, "good", string(b))

	got := eventually[models.Report](t, "/api/report/uploadId/cli-u1")
	require.Len(t, got, 1)
	assert.Equal(t, "cli-u1", got[0].UploadID)
	assert.Equal(t, models.SourceLocal, got[0].Source)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(inbox, "good.json"))
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond, "acked message should leave the inbox")
}

func TestRejectedReportIsDeadLettered(t *testing.T) {
	drop(t, "bad", `{"upload_id": "cli-u2", "content_type": "application/json"}`)

	got := eventually[models.ReportDeadLetter](t, "/api/report/dlq/uploadId/cli-u2")
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].DeadLetterReasons)

	resp, err := ts.Client().Get(ts.URL + "/api/report/uploadId/cli-u2")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWellKnownEndpoints(t *testing.T) {
	endpoints := []string{
		"/",
		"/health",
		"/version",
		"/metrics",
	}
	client := ts.Client()
	for _, endpoint := range endpoints {
		resp, err := client.Get(ts.URL + endpoint)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != 200 {
			t.Error("bad response for ", endpoint, resp.StatusCode)
		}
	}
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "report-sink-cli")
	if err != nil {
		log.Fatal(err)
	}
	inbox = filepath.Join(dir, "inbox")
	if err := os.MkdirAll(inbox, 0750); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	appConfig, err := appconfig.ParseConfigFrom(ctx, envconfig.MapLookuper(map[string]string{
		"LOCAL_REPORTS_FOLDER": filepath.Join(dir, "reports"),
		"LOCAL_INBOX_FOLDER":   inbox,
		"LOCAL_EVENTS_FOLDER":  filepath.Join(dir, "events"),
		"RETRY_INTERVAL":       "10ms",
	}))
	if err != nil {
		log.Fatal(err)
	}

	sink, err := Serve(ctx, appConfig)
	if err != nil {
		log.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	ts = httptest.NewServer(sink.Handler)
	code := m.Run()

	ts.Close()
	cancel()
	<-done
	sink.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}
