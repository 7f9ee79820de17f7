// Package reports builds stage reports in the shape the report sink
// consumes. Pipeline services and tests use it to produce messages.
package reports

import (
	"encoding/json"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultSchemaVersion = "1.0.0"
	StatusSuccess        = "SUCCESS"
	StatusFailure        = "FAILURE"
	IssueLevelWarning    = "WARNING"
	IssueLevelError      = "ERROR"
	AggregationSingle    = "SINGLE"
	AggregationBatch     = "BATCH"
)

// ReportContent names the schema a report's content is validated against.
type ReportContent struct {
	SchemaName    string `json:"content_schema_name"`
	SchemaVersion string `json:"content_schema_version"`
}

type UploadStatusContent struct {
	ReportContent
	Filename string `json:"filename,omitempty"`
	Tguid    string `json:"tguid,omitempty"`
	Offset   int64  `json:"offset"`
	Size     int64  `json:"size"`
}

type FileCopyContent struct {
	ReportContent
	FileSourceBlobUrl      string `json:"file_source_blob_url"`
	FileDestinationBlobUrl string `json:"file_destination_blob_url"`
	Timestamp              string `json:"timestamp,omitempty"`
}

type Builder[T any] interface {
	SetAction(string) Builder[T]
	SetUploadId(string) Builder[T]
	SetDataStream(id, route string) Builder[T]
	SetJurisdiction(string) Builder[T]
	AppendIssue(level, msg string) Builder[T]
	SetStatus(string) Builder[T]
	SetStartTime(time.Time) Builder[T]
	SetEndTime(time.Time) Builder[T]
	SetIngestTime(time.Time) Builder[T]
	SetDispositionType(models.DispositionType) Builder[T]
	SetMessageMetadata(messageUUID, aggregation string, index int) Builder[T]
	SetContent(T) Builder[T]
	Build() (*models.CreateReportMessage, error)
	JSON() ([]byte, error)
}

func NewBuilder[T any](service string, action string, uploadId string) Builder[T] {
	return &ReportBuilder[T]{
		Version:         DefaultSchemaVersion,
		Service:         service,
		Action:          action,
		UploadId:        uploadId,
		Status:          StatusSuccess,
		DispositionType: models.DispositionTypeAdd,
		MessageMetadata: models.MessageMetadata{
			MessageUUID: uuid.NewString(),
			Aggregation: AggregationSingle,
		},
	}
}

type ReportBuilder[T any] struct {
	Version         string
	Service         string
	Action          string
	UploadId        string
	DataStreamID    string
	DataStreamRoute string
	Jurisdiction    string
	Issues          []models.Issue
	Status          string
	StartTime       time.Time
	EndTime         time.Time
	IngestTime      time.Time
	DispositionType models.DispositionType
	MessageMetadata models.MessageMetadata
	Content         T
}

func (b *ReportBuilder[T]) SetAction(a string) Builder[T] {
	b.Action = a
	return b
}

func (b *ReportBuilder[T]) SetUploadId(id string) Builder[T] {
	b.UploadId = id
	return b
}

func (b *ReportBuilder[T]) SetDataStream(id, route string) Builder[T] {
	b.DataStreamID = id
	b.DataStreamRoute = route
	return b
}

func (b *ReportBuilder[T]) SetJurisdiction(j string) Builder[T] {
	b.Jurisdiction = j
	return b
}

func (b *ReportBuilder[T]) SetStatus(s string) Builder[T] {
	b.Status = s
	return b
}

func (b *ReportBuilder[T]) AppendIssue(level, msg string) Builder[T] {
	b.Issues = append(b.Issues, models.Issue{Level: level, Message: msg})
	return b
}

func (b *ReportBuilder[T]) SetStartTime(t time.Time) Builder[T] {
	b.StartTime = t
	return b
}

func (b *ReportBuilder[T]) SetEndTime(t time.Time) Builder[T] {
	b.EndTime = t
	return b
}

func (b *ReportBuilder[T]) SetIngestTime(t time.Time) Builder[T] {
	b.IngestTime = t
	return b
}

func (b *ReportBuilder[T]) SetDispositionType(d models.DispositionType) Builder[T] {
	b.DispositionType = d
	return b
}

func (b *ReportBuilder[T]) SetMessageMetadata(messageUUID, aggregation string, index int) Builder[T] {
	b.MessageMetadata = models.MessageMetadata{
		MessageUUID:  messageUUID,
		Aggregation:  aggregation,
		MessageIndex: index,
	}
	return b
}

func (b *ReportBuilder[T]) SetContent(c T) Builder[T] {
	b.Content = c
	return b
}

func (b *ReportBuilder[T]) Build() (*models.CreateReportMessage, error) {
	content, err := json.Marshal(b.Content)
	if err != nil {
		return nil, err
	}
	metadata := b.MessageMetadata
	ingest := b.IngestTime
	if ingest.IsZero() {
		ingest = time.Now()
	}
	return &models.CreateReportMessage{
		ReportSchemaVersion: b.Version,
		UploadID:            b.UploadId,
		DataStreamID:        b.DataStreamID,
		DataStreamRoute:     b.DataStreamRoute,
		Jurisdiction:        b.Jurisdiction,
		DexIngestDateTime:   ingest.UTC().Format(time.RFC3339),
		ContentType:         "application/json",
		DispositionType:     string(b.DispositionType),
		MessageMetadata:     &metadata,
		StageInfo: &models.StageInfo{
			Service:             b.Service,
			Action:              b.Action,
			Status:              b.Status,
			Issues:              b.Issues,
			StartProcessingTime: formatTime(b.StartTime),
			EndProcessingTime:   formatTime(b.EndTime),
		},
		Content: content,
	}, nil
}

// JSON renders the built report as it is put on the wire.
func (b *ReportBuilder[T]) JSON() ([]byte, error) {
	m, err := b.Build()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
