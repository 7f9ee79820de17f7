package validation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/loaders/file"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/schemas"
)

const validReport = `{
  "upload_id": "u1",
  "data_stream_id": "dextesting",
  "data_stream_route": "testevent1",
  "dex_ingest_datetime": "2024-06-01T10:00:00Z",
  "stage_info": {"service": "upload", "action": "upload-status", "status": "SUCCESS"},
  "content_type": "application/json",
  "content": {"content_schema_name": "upload-status", "content_schema_version": "1.0.0", "offset": 10, "size": 100}
}`

func newGate(cfg validation.Config) *validation.Gate {
	return validation.NewGate(cfg, &file.SchemaLoader{FileSystem: schemas.FS})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	g := newGate(validation.Config{})

	tests := map[string]struct {
		raw       string
		ok        bool
		reason    string
		attempted []string
	}{
		"valid": {
			raw:       validReport,
			ok:        true,
			attempted: []string{"base.0.0.1.schema.json", "upload-status.1.0.0.schema.json"},
		},
		"malformed": {
			raw:       `{not json`,
			reason:    validation.ReasonMalformed,
			attempted: []string{},
		},
		"unknown base version": {
			raw:       `{"report_schema_version": "9.9.9"}`,
			reason:    "Report rejected: Schema file not found for base schema version 9.9.9",
			attempted: []string{},
		},
		"base schema violation": {
			raw:       strings.Replace(validReport, `"upload_id": "u1",`, "", 1),
			reason:    "schema: $",
			attempted: []string{"base.0.0.1.schema.json"},
		},
		"base64 content skips content schema": {
			raw:       strings.Replace(strings.Replace(validReport, `"application/json"`, `"base64"`, 1), `{"content_schema_name": "upload-status", "content_schema_version": "1.0.0", "offset": 10, "size": 100}`, `"aGVsbG8="`, 1),
			ok:        true,
			attempted: []string{"base.0.0.1.schema.json"},
		},
		"other content type": {
			raw:       strings.Replace(validReport, `"application/json"`, `"text/plain"`, 1),
			reason:    validation.ReasonContentTypeNotJSON,
			attempted: []string{"base.0.0.1.schema.json"},
		},
		"content schema name missing": {
			raw:       strings.Replace(validReport, `"content_schema_name": "upload-status", `, "", 1),
			reason:    validation.ReasonContentSchemaAbsent,
			attempted: []string{"base.0.0.1.schema.json"},
		},
		"content schema not found": {
			raw:       strings.Replace(validReport, `"content_schema_version": "1.0.0"`, `"content_schema_version": "7.0.0"`, 1),
			reason:    "Report rejected: Content schema file not found for content schema name 'upload-status' and schema version '7.0.0'.",
			attempted: []string{"base.0.0.1.schema.json"},
		},
		"content schema violation": {
			raw:       strings.Replace(validReport, `"offset": 10`, `"offset": -1`, 1),
			reason:    "schema: $/offset",
			attempted: []string{"base.0.0.1.schema.json", "upload-status.1.0.0.schema.json"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			res := g.Validate(ctx, test.raw, "")
			if res.Ok != test.ok {
				t.Fatalf("ok = %v, want %v, violations %+v", res.Ok, test.ok, res.Violations)
			}
			if strings.Join(res.SchemasAttempted, ",") != strings.Join(test.attempted, ",") {
				t.Fatalf("schemas attempted = %v, want %v", res.SchemasAttempted, test.attempted)
			}
			if test.ok {
				if len(res.Violations) != 0 {
					t.Fatalf("unexpected violations %+v", res.Violations)
				}
				return
			}
			reasons := res.Reasons()
			if len(reasons) == 0 {
				t.Fatal("rejected without a reason")
			}
			if !strings.Contains(strings.Join(reasons, "\n"), test.reason) {
				t.Fatalf("reasons %q do not contain %q", reasons, test.reason)
			}
		})
	}
}

func TestVersionedBaseSchemaFollowsRefs(t *testing.T) {
	g := newGate(validation.Config{})
	raw := strings.Replace(validReport, `"upload_id": "u1",`, `"upload_id": "u1", "report_schema_version": "1.0.0",`, 1)

	res := g.Validate(context.Background(), raw, "")

	// 1.0.0 also requires message_metadata
	if res.Ok {
		t.Fatal("expected message_metadata to be required by base 1.0.0")
	}
	if res.SchemasAttempted[0] != "base.1.0.0.schema.json" {
		t.Fatalf("unexpected schemas %v", res.SchemasAttempted)
	}
}

func TestDeclaredTypeOverridesVersion(t *testing.T) {
	g := newGate(validation.Config{})
	res := g.Validate(context.Background(), validReport, "4.0.0")
	if res.Ok || !strings.Contains(res.Violations[0].Message, "base schema version 4.0.0") {
		t.Fatalf("expected declared version to be used, got %+v", res)
	}
}

func TestDisabledOnlyChecksWellFormedness(t *testing.T) {
	g := newGate(validation.Config{Disabled: true})

	res := g.Validate(context.Background(), `{"anything": true}`, "")
	if !res.Ok || res.Mode != validation.ModeDisabled {
		t.Fatalf("expected disabled gate to accept any JSON, got %+v", res)
	}

	res = g.Validate(context.Background(), `{not json`, "")
	if res.Ok {
		t.Fatal("expected malformed JSON to fail even when disabled")
	}
	if got := res.Reasons(); len(got) != 1 || got[0] != validation.ReasonNotJSON {
		t.Fatalf("unexpected reasons %q", got)
	}
	if len(res.SchemasAttempted) != 0 {
		t.Fatalf("no schema should be attempted, got %v", res.SchemasAttempted)
	}
}

type countingLoader struct {
	validation.SchemaLoader
	loads map[string]int
}

func (l *countingLoader) LoadSchema(ctx context.Context, name string) ([]byte, error) {
	l.loads[name]++
	return l.SchemaLoader.LoadSchema(ctx, name)
}

func TestCompiledSchemasAreCached(t *testing.T) {
	l := &countingLoader{SchemaLoader: &file.SchemaLoader{FileSystem: schemas.FS}, loads: map[string]int{}}
	g := validation.NewGate(validation.Config{}, l)
	for i := 0; i < 3; i++ {
		if res := g.Validate(context.Background(), validReport, ""); !res.Ok {
			t.Fatalf("unexpected violations %+v", res.Violations)
		}
	}
	if l.loads["base.0.0.1.schema.json"] != 1 || l.loads["upload-status.1.0.0.schema.json"] != 1 {
		t.Fatalf("expected each schema to load once, got %v", l.loads)
	}
}

func TestFileLoaderNotFound(t *testing.T) {
	l := &file.SchemaLoader{FileSystem: fstest.MapFS{}}
	_, err := l.LoadSchema(context.Background(), "missing.schema.json")
	if !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type downLoader struct{}

func (downLoader) LoadSchema(context.Context, string) ([]byte, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestUnreachableSchemaSourceLeavesMessageUnjudged(t *testing.T) {
	res := validation.NewGate(validation.Config{}, downLoader{}).Validate(context.Background(), validReport, "")

	var loadErr *validation.LoadError
	if !errors.As(res.Err, &loadErr) {
		t.Fatalf("expected a LoadError, got %v", res.Err)
	}
	if loadErr.Schema != "base.0.0.1.schema.json" {
		t.Fatalf("unexpected schema %q", loadErr.Schema)
	}
	if res.Ok || len(res.Violations) != 0 {
		t.Fatalf("expected no verdict, got ok=%v violations=%+v", res.Ok, res.Violations)
	}
}

func TestBrokenSchemaFileRejects(t *testing.T) {
	l := &file.SchemaLoader{FileSystem: fstest.MapFS{
		"base.0.0.1.schema.json": {Data: []byte(`{not a schema`)},
	}}
	res := validation.NewGate(validation.Config{}, l).Validate(context.Background(), validReport, "")

	if res.Err != nil {
		t.Fatalf("expected a verdict, got error %v", res.Err)
	}
	if res.Ok || len(res.Violations) != 1 || res.Violations[0].Origin != validation.OriginStructural {
		t.Fatalf("expected one structural violation, got %+v", res.Violations)
	}
}
