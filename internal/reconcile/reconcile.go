package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/retry"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/sinkerrors"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
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

const DefaultMaxReplaceMatches = 50

// ValidatedMessage is a normalized message that passed the validation gate.
type ValidatedMessage struct {
	Message    *models.CreateReportMessage
	Source     models.Source
	ReceivedAt time.Time
}

type Engine struct {
	Reports storage.Collection
	Retry   *retry.Controller
	// MaxReplaceMatches bounds how many existing reports a REPLACE will clean
	// up before giving the message to an operator.
	MaxReplaceMatches int

	Now   func() time.Time
	NewID func() string
}

func New(reports storage.Collection, r *retry.Controller, maxReplaceMatches int) *Engine {
	return &Engine{
		Reports:           reports,
		Retry:             r,
		MaxReplaceMatches: maxReplaceMatches,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) maxMatches() int {
	if e.MaxReplaceMatches <= 0 {
		return DefaultMaxReplaceMatches
	}
	return e.MaxReplaceMatches
}

// Reconcile persists msg according to disposition and returns the id of the
// report that is current for it. A stale REPLACE returns the id of the newer
// report already stored and no error.
func (e *Engine) Reconcile(ctx context.Context, msg ValidatedMessage, disposition models.DispositionType) (string, error) {
	report, err := e.BuildReport(msg)
	if err != nil {
		return "", err
	}
	ctx = sloger.SetUploadId(ctx, report.UploadID)

	switch disposition {
	case models.DispositionTypeAdd:
		if err := e.insert(ctx, report); err != nil {
			return "", err
		}
		metrics.ReportsTotal.WithLabelValues(string(report.Source), metrics.ResultCreated).Inc()
		sloger.GetLogger(ctx).Info("report created", "reportId", report.ID, "service", report.StageInfo.Service, "action", report.StageInfo.Action)
		return report.ID, nil
	case models.DispositionTypeReplace:
		return e.replace(ctx, report)
	}
	return "", sinkerrors.BadRequest(fmt.Sprintf("unsupported disposition type %q", disposition))
} // .Reconcile

// BuildReport converts msg into the report that would be stored for it.
func (e *Engine) BuildReport(msg ValidatedMessage) (*models.Report, error) {
	m := msg.Message
	if m == nil {
		return nil, sinkerrors.BadRequest("no message to reconcile")
	}

	var missing []string
	if m.UploadID == "" {
		missing = append(missing, "upload_id")
	}
	if m.DataStreamID == "" {
		missing = append(missing, "data_stream_id")
	}
	if m.DataStreamRoute == "" {
		missing = append(missing, "data_stream_route")
	}
	if m.StageInfo == nil || m.StageInfo.Service == "" {
		missing = append(missing, "stage_info.service")
	}
	if m.StageInfo == nil || m.StageInfo.Action == "" {
		missing = append(missing, "stage_info.action")
	}
	if m.ContentType == "" {
		missing = append(missing, "content_type")
	}
	if len(missing) > 0 {
		return nil, &sinkerrors.BadRequestError{Missing: missing}
	}

	content, err := models.ResolveContent(m.ContentType, m.Content)
	if err != nil {
		return nil, &sinkerrors.ContentError{ContentType: m.ContentType, Err: err}
	}

	ingested, err := parseIngestTime(m.DexIngestDateTime, msg.ReceivedAt)
	if err != nil {
		return nil, err
	}

	version := m.ReportSchemaVersion
	if version == "" {
		version = models.DEFAULT_REPORT_SCHEMA_VERSION
	}

	id := e.newID()
	return &models.Report{
		ID:                  id,
		ReportID:            id,
		UploadID:            m.UploadID,
		ReportSchemaVersion: version,
		DataStreamID:        m.DataStreamID,
		DataStreamRoute:     m.DataStreamRoute,
		DexIngestDateTime:   ingested,
		MessageMetadata:     models.NewReportMetadata(m.MessageMetadata),
		StageInfo:           *models.NewReportStageInfo(m.StageInfo),
		Tags:                m.Tags,
		Data:                m.Data,
		ContentType:         m.ContentType,
		Content:             content,
		Jurisdiction:        m.Jurisdiction,
		SenderID:            m.SenderID,
		DataProducerID:      m.DataProducerID,
		Source:              msg.Source,
		Timestamp:           e.now().UTC(),
	}, nil
}

func parseIngestTime(raw string, receivedAt time.Time) (time.Time, error) {
	if raw == "" {
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		return receivedAt.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, sinkerrors.BadRequest(fmt.Sprintf("%s is not an RFC 3339 timestamp: %q", models.DEX_INGEST_DATE_TIME_KEY_NAME, raw))
	}
	return t.UTC(), nil
}

func (e *Engine) insert(ctx context.Context, r *models.Report) error {
	return e.Retry.Do(ctx, "create report", func(ctx context.Context) storage.WriteResult {
		return e.Reports.CreateItem(ctx, r.ID, r, r.UploadID)
	})
}

func (e *Engine) delete(ctx context.Context, r models.Report) error {
	return e.Retry.Do(ctx, "delete report", func(ctx context.Context) storage.WriteResult {
		return e.Reports.DeleteItem(ctx, r.ID, r.UploadID)
	})
}

func stageQuery(r *models.Report) storage.Query {
	return storage.NewQuery(r.UploadID).
		Where("uploadId", r.UploadID).
		Where("stageInfo.service", r.StageInfo.Service).
		Where("stageInfo.action", r.StageInfo.Action)
}

func (e *Engine) existing(ctx context.Context, r *models.Report) ([]models.Report, error) {
	matches, err := storage.QueryAs[models.Report](ctx, e.Reports, stageQuery(r))
	if err != nil {
		return nil, sinkerrors.BadState("query existing reports", err)
	}
	if len(matches) > e.maxMatches() {
		return nil, &DuplicatesError{
			UploadID: r.UploadID,
			Service:  r.StageInfo.Service,
			Action:   r.StageInfo.Action,
			Count:    len(matches),
			Limit:    e.maxMatches(),
		}
	}
	newestFirst(matches)
	return matches, nil
}

// newestFirst orders reports by ingestion time, newest first. Ties keep the
// report that was written first, then fall back to the id, so every worker
// picks the same survivor from the same set.
func newestFirst(reports []models.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i], reports[j]
		if !a.DexIngestDateTime.Equal(b.DexIngestDateTime) {
			return a.DexIngestDateTime.After(b.DexIngestDateTime)
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}

func (e *Engine) replace(ctx context.Context, r *models.Report) (string, error) {
	log := sloger.GetLogger(ctx).With("service", r.StageInfo.Service, "action", r.StageInfo.Action)

	matches, err := e.existing(ctx, r)
	if err != nil {
		return "", err
	}

	if len(matches) > 0 {
		reference := matches[0]
		for _, loser := range matches[1:] {
			if err := e.delete(ctx, loser); err != nil {
				return "", err
			}
			log.Info("removed duplicate report", "reportId", loser.ID, "dexIngestDateTime", loser.DexIngestDateTime)
		}

		if !reference.DexIngestDateTime.Before(r.DexIngestDateTime) {
			log.Info("skipped: older than existing", "existingReportId", reference.ID,
				"existingDexIngestDateTime", reference.DexIngestDateTime, "dexIngestDateTime", r.DexIngestDateTime)
			metrics.ReportsTotal.WithLabelValues(string(r.Source), metrics.ResultSkipped).Inc()
			return reference.ID, nil
		}
		if err := e.delete(ctx, reference); err != nil {
			return "", err
		}
	}

	if err := e.insert(ctx, r); err != nil {
		return "", err
	}
	log.Info("report replaced", "reportId", r.ID, "superseded", len(matches))

	// a concurrent REPLACE for the same stage may have inserted between our
	// query and insert
	current, err := e.settle(ctx, r)
	if err != nil {
		return "", err
	}
	metrics.ReportsTotal.WithLabelValues(string(r.Source), metrics.ResultReplaced).Inc()
	return current, nil
} // .replace

// settle removes every report for r's stage except the newest and returns
// the survivor's id.
func (e *Engine) settle(ctx context.Context, r *models.Report) (string, error) {
	matches, err := e.existing(ctx, r)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		// a newer REPLACE removed ours and has not written yet
		return r.ID, nil
	}
	for _, loser := range matches[1:] {
		if err := e.delete(ctx, loser); err != nil {
			return "", err
		}
	}
	if matches[0].ID != r.ID {
		sloger.GetLogger(ctx).Info("superseded by concurrent replace", "reportId", r.ID, "currentReportId", matches[0].ID)
	}
	return matches[0].ID, nil
}
