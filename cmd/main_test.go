//go:build integration
// +build integration

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
)

const report = `{
  "upload_id": "%s",
  "data_stream_id": "dextesting",
  "data_stream_route": "testevent1",
  "dex_ingest_datetime": "2024-06-01T10:00:00Z",
  "stage_info": {"service": "upload", "action": "upload-status", "status": "SUCCESS"},
  "content_type": "application/json",
  "content": {"content_schema_name": "upload-status", "content_schema_version": "1.0.0", "offset": 10, "size": 100}
}`

func TestLocalSink(t *testing.T) {
	for name, c := range cases {
		log.Println("Starting case", name)
		inbox := setUp(t, c)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			main()
		}()

		url := fmt.Sprintf("http://localhost:%s", os.Getenv("SERVER_PORT"))
		uploadID := "integration-" + name
		if err := os.WriteFile(filepath.Join(inbox, uploadID+".json"), []byte(fmt.Sprintf(report, uploadID)), 0600); err != nil {
			t.Fatal(err)
		}

		if err := waitFor(url + "/api/report/uploadId/" + uploadID); err != nil {
			t.Error(name, err)
		} else {
			t.Log("test case", name, "passed")
		}
		syscall.Kill(syscall.Getpid(), syscall.SIGINT)
		wg.Wait()
	}
}

func waitFor(url string) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", url)
}

// GetFreePort asks the kernel for a free open port that is ready to use.
// credit: https://gist.github.com/sevkin/96bdae9274465b2d09191384f86ef39d
func GetFreePort() (port int, err error) {
	var a *net.TCPAddr
	if a, err = net.ResolveTCPAddr("tcp", "localhost:0"); err == nil {
		var l *net.TCPListener
		if l, err = net.ListenTCP("tcp", a); err == nil {
			defer l.Close()
			return l.Addr().(*net.TCPAddr).Port, nil
		}
	}
	return
}

func setUp(t *testing.T, c map[string]string) string {
	// clear the environment to prevent anything exciting
	os.Clearenv()
	port, err := GetFreePort()
	if err != nil {
		log.Fatal(err)
	}
	dir := t.TempDir()
	inbox := filepath.Join(dir, "inbox")
	if err := os.MkdirAll(inbox, 0750); err != nil {
		t.Fatal(err)
	}
	os.Setenv("LOCAL_INBOX_FOLDER", inbox)
	os.Setenv("LOCAL_REPORTS_FOLDER", filepath.Join(dir, "reports"))
	os.Setenv("LOCAL_EVENTS_FOLDER", filepath.Join(dir, "events"))
	os.Setenv("SERVER_PORT", fmt.Sprintf("%d", port))
	for key, val := range c {
		os.Setenv(key, val)
	}

	appConfig, err = appconfig.ParseConfig(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return inbox
}

var cases = map[string]map[string]string{
	"local": {},
	"forwarding": {
		"FORWARD_VALIDATED_REPORTS": "true",
	},
	"redis_tracker": {
		"REDIS_CONNECTION_STRING": "redis://redispw@cache:6379",
	},
}
