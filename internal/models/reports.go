package models

import (
	"encoding/json"
	"strings"
	"time"
)

// CreateReportMessage is the inbound wire shape of a stage report as it is
// published by pipeline services.
type CreateReportMessage struct {
	ReportSchemaVersion string            `json:"report_schema_version,omitempty"`
	UploadID            string            `json:"upload_id,omitempty"`
	DataStreamID        string            `json:"data_stream_id,omitempty"`
	DataStreamRoute     string            `json:"data_stream_route,omitempty"`
	DexIngestDateTime   string            `json:"dex_ingest_datetime,omitempty"`
	MessageMetadata     *MessageMetadata  `json:"message_metadata,omitempty"`
	StageInfo           *StageInfo        `json:"stage_info,omitempty"`
	Tags                map[string]string `json:"tags,omitempty"`
	Data                map[string]string `json:"data,omitempty"`
	Jurisdiction        string            `json:"jurisdiction,omitempty"`
	SenderID            string            `json:"sender_id,omitempty"`
	DataProducerID      string            `json:"data_producer_id,omitempty"`
	ContentType         string            `json:"content_type,omitempty"`
	Content             json.RawMessage   `json:"content,omitempty"`
	DispositionType     string            `json:"disposition_type,omitempty"`
}

// Disposition resolves the requested disposition, defaulting to ADD.
func (m *CreateReportMessage) Disposition() (DispositionType, bool) {
	switch DispositionType(strings.ToUpper(strings.TrimSpace(m.DispositionType))) {
	case "", DispositionTypeAdd:
		return DispositionTypeAdd, true
	case DispositionTypeReplace:
		return DispositionTypeReplace, true
	}
	return "", false
}

type MessageMetadata struct {
	MessageUUID  string `json:"message_uuid,omitempty"`
	MessageHash  string `json:"message_hash,omitempty"`
	Aggregation  string `json:"aggregation,omitempty"`
	MessageIndex int    `json:"message_index,omitempty"`
}

type StageInfo struct {
	Service             string  `json:"service,omitempty"`
	Action              string  `json:"action,omitempty"`
	Version             string  `json:"version,omitempty"`
	Status              string  `json:"status,omitempty"`
	Issues              []Issue `json:"issues,omitempty"`
	StartProcessingTime string  `json:"start_processing_time,omitempty"`
	EndProcessingTime   string  `json:"end_processing_time,omitempty"`
}

type Issue struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Report is one persisted stage event. Reports are immutable once written.
type Report struct {
	ID                  string            `json:"id"`
	ReportID            string            `json:"reportId"`
	UploadID            string            `json:"uploadId"`
	ReportSchemaVersion string            `json:"reportSchemaVersion,omitempty"`
	DataStreamID        string            `json:"dataStreamId"`
	DataStreamRoute     string            `json:"dataStreamRoute"`
	DexIngestDateTime   time.Time         `json:"dexIngestDateTime"`
	MessageMetadata     *ReportMetadata   `json:"messageMetadata,omitempty"`
	StageInfo           ReportStageInfo   `json:"stageInfo"`
	Tags                map[string]string `json:"tags,omitempty"`
	Data                map[string]string `json:"data,omitempty"`
	ContentType         string            `json:"contentType"`
	Content             Content           `json:"content"`
	Jurisdiction        string            `json:"jurisdiction,omitempty"`
	SenderID            string            `json:"senderId,omitempty"`
	DataProducerID      string            `json:"dataProducerId,omitempty"`
	Source              Source            `json:"source"`
	Timestamp           time.Time         `json:"timestamp"`
}

type ReportMetadata struct {
	MessageUUID  string `json:"messageUUID,omitempty"`
	MessageHash  string `json:"messageHash,omitempty"`
	Aggregation  string `json:"aggregation,omitempty"`
	MessageIndex int    `json:"messageIndex,omitempty"`
}

type ReportStageInfo struct {
	Service             string  `json:"service"`
	Action              string  `json:"action"`
	Version             string  `json:"version,omitempty"`
	Status              string  `json:"status,omitempty"`
	Issues              []Issue `json:"issues,omitempty"`
	StartProcessingTime string  `json:"startProcessingTime,omitempty"`
	EndProcessingTime   string  `json:"endProcessingTime,omitempty"`
}

// ReportDeadLetter is a quarantined message kept for operator inspection.
// Every identity field is best effort and may be empty.
type ReportDeadLetter struct {
	ID                  string            `json:"id"`
	ReportID            string            `json:"reportId"`
	UploadID            string            `json:"uploadId,omitempty"`
	ReportSchemaVersion string            `json:"reportSchemaVersion,omitempty"`
	DataStreamID        string            `json:"dataStreamId,omitempty"`
	DataStreamRoute     string            `json:"dataStreamRoute,omitempty"`
	DexIngestDateTime   string            `json:"dexIngestDateTime,omitempty"`
	MessageMetadata     *ReportMetadata   `json:"messageMetadata,omitempty"`
	StageInfo           *ReportStageInfo  `json:"stageInfo,omitempty"`
	Tags                map[string]string `json:"tags,omitempty"`
	Data                map[string]string `json:"data,omitempty"`
	ContentType         string            `json:"contentType,omitempty"`
	Content             any               `json:"content,omitempty"`
	Jurisdiction        string            `json:"jurisdiction,omitempty"`
	SenderID            string            `json:"senderId,omitempty"`
	DataProducerID      string            `json:"dataProducerId,omitempty"`
	Source              Source            `json:"source,omitempty"`
	DispositionType     string            `json:"dispositionType,omitempty"`
	DeadLetterReasons   []string          `json:"deadLetterReasons"`
	ValidationSchemas   []string          `json:"validationSchemas"`
	Timestamp           time.Time         `json:"timestamp"`
}

func NewReportMetadata(m *MessageMetadata) *ReportMetadata {
	if m == nil {
		return nil
	}
	return &ReportMetadata{
		MessageUUID:  m.MessageUUID,
		MessageHash:  m.MessageHash,
		Aggregation:  m.Aggregation,
		MessageIndex: m.MessageIndex,
	}
}

func NewReportStageInfo(s *StageInfo) *ReportStageInfo {
	if s == nil {
		return nil
	}
	return &ReportStageInfo{
		Service:             s.Service,
		Action:              s.Action,
		Version:             s.Version,
		Status:              s.Status,
		Issues:              s.Issues,
		StartProcessingTime: s.StartProcessingTime,
		EndProcessingTime:   s.EndProcessingTime,
	}
}
