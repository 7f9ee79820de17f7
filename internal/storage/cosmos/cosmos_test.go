package cosmos

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
)

func responseError(status int, header http.Header) error {
	return &azcore.ResponseError{
		StatusCode:  status,
		RawResponse: &http.Response{StatusCode: status, Header: header},
	}
}

func TestClassify(t *testing.T) {
	throttled := http.Header{}
	throttled.Set(retryAfterHeader, "1250")

	tests := []struct {
		name       string
		err        error
		isDelete   bool
		outcome    storage.Outcome
		retryAfter time.Duration
	}{
		{"ok", nil, false, storage.Success, 0},
		{"throttled", responseError(http.StatusTooManyRequests, throttled), false, storage.Throttled, 1250 * time.Millisecond},
		{"throttled without header", responseError(http.StatusTooManyRequests, http.Header{}), false, storage.Throttled, 0},
		{"conflict", responseError(http.StatusConflict, nil), false, storage.Fatal, 0},
		{"delete missing", responseError(http.StatusNotFound, nil), true, storage.Success, 0},
		{"create in missing container", responseError(http.StatusNotFound, nil), false, storage.Fatal, 0},
		{"unavailable", responseError(http.StatusServiceUnavailable, nil), false, storage.Transient, 0},
		{"timeout", responseError(http.StatusRequestTimeout, nil), false, storage.Transient, 0},
		{"forbidden", responseError(http.StatusForbidden, nil), false, storage.Fatal, 0},
		{"network", errors.New("dial tcp: connection refused"), false, storage.Transient, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := classify(tt.err, tt.isDelete)
			if res.Outcome != tt.outcome {
				t.Fatalf("expected %v, got %v", tt.outcome, res.Outcome)
			}
			if res.RetryAfter != tt.retryAfter {
				t.Fatalf("expected retry after %v, got %v", tt.retryAfter, res.RetryAfter)
			}
		})
	}
}

func TestCreatedConflictIsSuccess(t *testing.T) {
	if res := created("r1", responseError(http.StatusConflict, nil)); res.Outcome != storage.Success {
		t.Fatalf("expected a conflicting create to succeed, got %v", res.Outcome)
	}
	if res := created("r1", responseError(http.StatusServiceUnavailable, nil)); res.Outcome != storage.Transient {
		t.Fatalf("expected transient, got %v", res.Outcome)
	}
}
