package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/event"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/retry"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
	"github.com/google/uuid"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const (
	UnknownFailure     = "unknown failure"
	RetriesExhausted   = "processing retries exhausted"
	ExhaustedRedeliver = "exhausted redelivery"
)

// Structural prefixes a reason found before any schema was selected.
func Structural(reason string) string {
	return validation.OriginStructural + ": " + reason
}

// Schema prefixes a rule violation found by a matched schema.
func Schema(reason string) string {
	return validation.OriginSchema + ": " + reason
}

type Router struct {
	DeadLetters storage.Collection
	Retry       *retry.Controller

	Now   func() time.Time
	NewID func() string
}

func New(deadLetters storage.Collection, r *retry.Controller) *Router {
	return &Router{DeadLetters: deadLetters, Retry: r}
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Router) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

// Quarantine writes one dead letter for env and returns its id. When partial
// is nil the identity fields are recovered from the raw body.
func (r *Router) Quarantine(ctx context.Context, env *event.RawEnvelope, reasons []string, schemasAttempted []string, partial *models.CreateReportMessage) (string, error) {
	if partial == nil {
		partial = SafeParse(env.Body)
	}
	dl := r.build(env, reasons, schemasAttempted, partial)

	partitionKey := dl.UploadID
	if partitionKey == "" {
		partitionKey = dl.ID
	}
	ctx = sloger.SetUploadId(ctx, dl.UploadID)

	err := r.Retry.Do(ctx, "create dead letter", func(ctx context.Context) storage.WriteResult {
		return r.DeadLetters.CreateItem(ctx, dl.ID, dl, partitionKey)
	})
	if err != nil {
		sloger.GetLogger(ctx).Error("failed to write dead letter", "messageId", env.MessageID, "reasons", dl.DeadLetterReasons, "error", err)
		return "", err
	}

	metrics.ReportsTotal.WithLabelValues(string(env.Source), metrics.ResultDeadLettered).Inc()
	sloger.GetLogger(ctx).Warn("report dead-lettered", "deadLetterId", dl.ID, "messageId", env.MessageID, "reasons", dl.DeadLetterReasons)
	return dl.ID, nil
} // .Quarantine

func (r *Router) build(env *event.RawEnvelope, reasons []string, schemasAttempted []string, m *models.CreateReportMessage) *models.ReportDeadLetter {
	if len(reasons) == 0 {
		reasons = []string{UnknownFailure}
	}
	if schemasAttempted == nil {
		schemasAttempted = []string{}
	}

	id := r.newID()
	dl := &models.ReportDeadLetter{
		ID:                id,
		ReportID:          id,
		Source:            env.Source,
		DeadLetterReasons: reasons,
		ValidationSchemas: schemasAttempted,
		Timestamp:         r.now().UTC(),
	}
	if m == nil {
		logger.Debug("dead letter body is not a JSON object", "messageId", env.MessageID)
		dl.Content = rawBody(env.Body)
		return dl
	}

	dl.UploadID = m.UploadID
	dl.ReportSchemaVersion = m.ReportSchemaVersion
	dl.DataStreamID = m.DataStreamID
	dl.DataStreamRoute = m.DataStreamRoute
	dl.DexIngestDateTime = m.DexIngestDateTime
	dl.MessageMetadata = models.NewReportMetadata(m.MessageMetadata)
	dl.StageInfo = models.NewReportStageInfo(m.StageInfo)
	dl.Tags = m.Tags
	dl.Data = m.Data
	dl.ContentType = m.ContentType
	dl.Content = content(m.Content)
	dl.Jurisdiction = m.Jurisdiction
	dl.SenderID = m.SenderID
	dl.DataProducerID = m.DataProducerID
	dl.DispositionType = m.DispositionType
	return dl
}

// content keeps JSON values as they arrived and strings as plain text.
func content(raw json.RawMessage) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	return nil
}

// rawBody keeps an unparseable body for inspection.
func rawBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if utf8.Valid(body) {
		return string(body)
	}
	return body
}

// SafeParse recovers whatever identity fields it can from raw. Each field is
// decoded on its own so one malformed field does not hide the rest. It
// returns nil only when raw is not a JSON object.
func SafeParse(raw []byte) *models.CreateReportMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}

	m := &models.CreateReportMessage{}
	str := func(key string, dst *string) {
		if v, ok := fields[key]; ok {
			var s string
			if json.Unmarshal(v, &s) == nil {
				*dst = s
			}
		}
	}
	str("report_schema_version", &m.ReportSchemaVersion)
	str("upload_id", &m.UploadID)
	str("data_stream_id", &m.DataStreamID)
	str("data_stream_route", &m.DataStreamRoute)
	str("dex_ingest_datetime", &m.DexIngestDateTime)
	str("jurisdiction", &m.Jurisdiction)
	str("sender_id", &m.SenderID)
	str("data_producer_id", &m.DataProducerID)
	str("content_type", &m.ContentType)
	str("disposition_type", &m.DispositionType)

	if v, ok := fields["message_metadata"]; ok {
		var md models.MessageMetadata
		if json.Unmarshal(v, &md) == nil {
			m.MessageMetadata = &md
		}
	}
	if v, ok := fields["stage_info"]; ok {
		m.StageInfo = safeStageInfo(v)
	}
	if v, ok := fields["tags"]; ok {
		_ = json.Unmarshal(v, &m.Tags)
	}
	if v, ok := fields["data"]; ok {
		_ = json.Unmarshal(v, &m.Data)
	}
	if v, ok := fields["content"]; ok {
		m.Content = v
	}
	return m
} // .SafeParse

func safeStageInfo(raw json.RawMessage) *models.StageInfo {
	var s models.StageInfo
	if json.Unmarshal(raw, &s) == nil {
		return &s
	}
	var fields map[string]json.RawMessage
	if json.Unmarshal(raw, &fields) != nil {
		return nil
	}
	for key, dst := range map[string]*string{
		"service": &s.Service,
		"action":  &s.Action,
		"version": &s.Version,
		"status":  &s.Status,
	} {
		if v, ok := fields[key]; ok {
			_ = json.Unmarshal(v, dst)
		}
	}
	return &s
}
