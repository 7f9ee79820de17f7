package sloger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestContextLoggerCarriesUploadAndMessage(t *testing.T) {
	var out bytes.Buffer
	SetDefaultLogger(slog.New(slog.NewTextHandler(&out, nil)))
	defer SetDefaultLogger(slog.Default())

	ctx := SetMessage(context.Background(), "SERVICEBUS", "msg-1")
	ctx = SetUploadId(ctx, "upload-1")
	GetLogger(ctx).Info("handling report")

	line := out.String()
	for _, want := range []string{"source=SERVICEBUS", "messageId=msg-1", "uploadId=upload-1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in log line %q", want, line)
		}
	}
}

func TestGetLoggerFallsBackToDefault(t *testing.T) {
	var out bytes.Buffer
	l := slog.New(slog.NewTextHandler(&out, nil))
	SetDefaultLogger(l)
	defer SetDefaultLogger(slog.Default())

	if GetLogger(context.Background()) != l {
		t.Fatalf("expected default logger when context has none")
	}
}
