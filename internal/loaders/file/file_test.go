package file

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/schemas"
)

func TestSchemaLoader(t *testing.T) {
	l := &SchemaLoader{FileSystem: fstest.MapFS{
		"base.1.0.0.schema.json": {Data: []byte(`{"type":"object"}`)},
	}}

	b, err := l.LoadSchema(context.Background(), "base.1.0.0.schema.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"object"}` {
		t.Fatalf("unexpected schema %s", b)
	}

	if _, err := l.LoadSchema(context.Background(), "nope.schema.json"); !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if rsp := l.Health(context.Background()); rsp.Status != models.STATUS_UP {
		t.Fatalf("expected healthy, got %+v", rsp)
	}
}

func TestEmbeddedSchemas(t *testing.T) {
	l := &SchemaLoader{FileSystem: schemas.FS}
	for _, name := range []string{
		"base.0.0.1.schema.json",
		"base.1.0.0.schema.json",
		"upload-status.1.0.0.schema.json",
		"blob-file-copy.1.0.0.schema.json",
	} {
		if _, err := l.LoadSchema(context.Background(), name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}
