package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
	"github.com/santhosh-tekuri/jsonschema/v6"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const (
	ModeEnabled  = "enabled"
	ModeDisabled = "disabled"

	schemaBaseURL = "https://github.com/cdcgov/data-exchange-processing-status/schemas/"
)

// Violation origins, kept on each violation so dead letters can say whether
// a schema was ever matched.
const (
	OriginStructural = "structural"
	OriginSchema     = "schema"
)

const (
	ReasonMalformed           = "Report rejected: Malformed JSON or error processing the report"
	ReasonNotJSON             = "Validation failed.The message is not in JSON format."
	ReasonContentTypeMissing  = "Report rejected: `content_type` is missing"
	ReasonContentTypeNotJSON  = "Report rejected: `content_type` is not JSON or base64"
	ReasonContentMissing      = "Report rejected: `content` is not JSON or is missing."
	ReasonContentSchemaAbsent = "Report rejected: `content_schema_name` or `content_schema_version` is missing or empty."
)

// SchemaLoader fetches a schema document by file name. Implementations return
// an error matching ErrNotFound when the schema does not exist.
type SchemaLoader interface {
	LoadSchema(ctx context.Context, name string) ([]byte, error)
}

type Config struct {
	// Disabled skips schema validation. Messages are still checked for
	// well-formed JSON.
	Disabled bool
}

type Violation struct {
	Origin  string
	Message string
}

type Result struct {
	Ok               bool
	Violations       []Violation
	SchemasAttempted []string
	Mode             string
	// Err is set when a schema could not be fetched. The message was not
	// judged and should be retried.
	Err error
}

// Reasons renders the violations the way they are recorded on dead letters.
func (r Result) Reasons() []string {
	reasons := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		if r.Mode == ModeDisabled {
			reasons = append(reasons, v.Message)
			continue
		}
		reasons = append(reasons, v.Origin+": "+v.Message)
	}
	return reasons
}

func (r *Result) reject(origin, msg string) Result {
	r.Ok = false
	r.Violations = append(r.Violations, Violation{Origin: origin, Message: msg})
	return *r
}

// fail records err. A schema source that cannot be reached leaves the
// message unjudged; a schema that loads but does not compile rejects it.
func (r *Result) fail(err error, schema string) Result {
	var loadErr *LoadError
	var refErr *jsonschema.LoadURLError
	if errors.As(err, &loadErr) || (errors.As(err, &refErr) && errors.As(refErr.Err, &loadErr)) {
		r.Ok = false
		r.Err = err
		return *r
	}
	return r.reject(OriginStructural, fmt.Sprintf("Report rejected: schema %s could not be compiled: %v", schema, err))
}

type Gate struct {
	Config Config
	Loader SchemaLoader

	schemas sync.Map // schema file name -> *jsonschema.Schema
}

func NewGate(cfg Config, loader SchemaLoader) *Gate {
	return &Gate{Config: cfg, Loader: loader}
}

// Validate checks raw against the base report schema and then the content
// schema it names. declaredType, when set, overrides the report schema
// version carried in the message.
func (g *Gate) Validate(ctx context.Context, raw string, declaredType string) Result {
	res := Result{Ok: true, SchemasAttempted: []string{}, Mode: ModeEnabled}
	if g.Config.Disabled {
		res.Mode = ModeDisabled
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		if g.Config.Disabled {
			return res.reject(OriginStructural, ReasonNotJSON)
		}
		return res.reject(OriginStructural, ReasonMalformed+": "+err.Error())
	}
	if g.Config.Disabled {
		return res
	}

	report, ok := inst.(map[string]any)
	if !ok {
		return res.reject(OriginStructural, ReasonMalformed+": report is not a JSON object")
	}

	version := declaredType
	if version == "" {
		version, _ = report["report_schema_version"].(string)
	}
	if version == "" {
		version = models.DEFAULT_REPORT_SCHEMA_VERSION
	}
	baseName := "base." + version + ".schema.json"
	base, err := g.schema(ctx, baseName)
	if errors.Is(err, ErrNotFound) {
		return res.reject(OriginStructural, "Report rejected: Schema file not found for base schema version "+version)
	}
	res.SchemasAttempted = append(res.SchemasAttempted, baseName)
	if err != nil {
		return res.fail(err, baseName)
	}
	if vs := violations(base.Validate(inst)); len(vs) > 0 {
		for _, v := range vs {
			res.reject(OriginSchema, v)
		}
		return res
	}

	contentType, ok := report["content_type"].(string)
	if !ok {
		return res.reject(OriginStructural, ReasonContentTypeMissing)
	}
	if models.IsBase64ContentType(contentType) {
		return res
	}
	if !models.IsJSONContentType(contentType) {
		return res.reject(OriginStructural, ReasonContentTypeNotJSON)
	}

	content, ok := contentObject(report["content"])
	if !ok {
		return res.reject(OriginStructural, ReasonContentMissing)
	}

	name, _ := content["content_schema_name"].(string)
	contentVersion, _ := content["content_schema_version"].(string)
	if name == "" || contentVersion == "" {
		return res.reject(OriginStructural, ReasonContentSchemaAbsent)
	}

	contentName := name + "." + contentVersion + ".schema.json"
	contentSchema, err := g.schema(ctx, contentName)
	if errors.Is(err, ErrNotFound) {
		return res.reject(OriginStructural, fmt.Sprintf("Report rejected: Content schema file not found for content schema name '%s' and schema version '%s'.", name, contentVersion))
	}
	res.SchemasAttempted = append(res.SchemasAttempted, contentName)
	if err != nil {
		return res.fail(err, contentName)
	}
	for _, v := range violations(contentSchema.Validate(content)) {
		res.reject(OriginSchema, v)
	}
	return res
} // .Validate

// contentObject accepts content as an object or as a string holding one.
func contentObject(v any) (map[string]any, bool) {
	switch c := v.(type) {
	case map[string]any:
		return c, true
	case string:
		inner, err := jsonschema.UnmarshalJSON(strings.NewReader(c))
		if err != nil {
			return nil, false
		}
		obj, ok := inner.(map[string]any)
		return obj, ok
	}
	return nil, false
}

func violations(err error) []string {
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	collect(ve.BasicOutput(), &out)
	if len(out) == 0 {
		out = append(out, ve.Error())
	}
	return out
}

func collect(u *jsonschema.OutputUnit, out *[]string) {
	if u == nil {
		return
	}
	if u.Error != nil && len(u.Errors) == 0 {
		*out = append(*out, "$"+u.InstanceLocation+": "+u.Error.String())
	}
	for i := range u.Errors {
		collect(&u.Errors[i], out)
	}
}

// schema returns the compiled schema for name, compiling it on first use.
func (g *Gate) schema(ctx context.Context, name string) (*jsonschema.Schema, error) {
	if s, ok := g.schemas.Load(name); ok {
		return s.(*jsonschema.Schema), nil
	}

	b, err := g.Loader.LoadSchema(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &LoadError{Schema: name, Err: err}
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s is not valid JSON: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	c.UseLoader(&urlLoader{ctx: ctx, loader: g.Loader})
	url := schemaBaseURL + name
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	logger.Debug("compiled schema", "schema", name)
	actual, _ := g.schemas.LoadOrStore(name, s)
	return actual.(*jsonschema.Schema), nil
}

// urlLoader resolves $ref targets to sibling schema files.
type urlLoader struct {
	ctx    context.Context
	loader SchemaLoader
}

func (l *urlLoader) Load(url string) (any, error) {
	name := path.Base(url)
	b, err := l.loader.LoadSchema(l.ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &LoadError{Schema: name, Err: err}
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

// Health reports whether the default base schema can be loaded.
func (g *Gate) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.SCHEMA_STORAGE)
	if g.Config.Disabled {
		return rsp
	}
	if _, err := g.Loader.LoadSchema(ctx, "base."+models.DEFAULT_REPORT_SCHEMA_VERSION+".schema.json"); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

// Decode is a helper for callers that need the typed message after a
// successful validation.
func Decode(raw string) (*models.CreateReportMessage, error) {
	var m models.CreateReportMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
