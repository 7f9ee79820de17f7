package event

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

// MaxMessages is the default receive batch size for pull based transports.
const MaxMessages = 10

// RawEnvelope is one inbound transport message. Exactly one of Ack or Nack
// takes effect; later calls are no-ops.
type RawEnvelope struct {
	Body          []byte
	Source        models.Source
	MessageID     string
	DeliveryCount int
	ReceivedAt    time.Time

	ack     func(ctx context.Context) error
	nack    func(ctx context.Context) error
	settled sync.Once
}

func NewEnvelope(body []byte, source models.Source, messageID string, deliveryCount int, ack, nack func(context.Context) error) *RawEnvelope {
	if deliveryCount < 1 {
		deliveryCount = 1
	}
	return &RawEnvelope{
		Body:          body,
		Source:        source,
		MessageID:     messageID,
		DeliveryCount: deliveryCount,
		ReceivedAt:    time.Now().UTC(),
		ack:           ack,
		nack:          nack,
	}
}

// Ack tells the transport the message is durably handled.
func (e *RawEnvelope) Ack(ctx context.Context) error {
	return e.settle(ctx, "ack", e.ack)
}

// Nack returns the message to the transport for redelivery.
func (e *RawEnvelope) Nack(ctx context.Context) error {
	return e.settle(ctx, "nack", e.nack)
}

func (e *RawEnvelope) settle(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	e.settled.Do(func() {
		metrics.EventsCounter.WithLabelValues(string(e.Source), op).Inc()
		if fn != nil {
			err = fn(ctx)
		}
	})
	return err
}

// Handler receives every envelope a listener delivers. It owns settling the
// envelope.
type Handler func(ctx context.Context, env *RawEnvelope)

// Listener is an inbound transport.
type Listener interface {
	health.Checkable
	io.Closer
	Listen(ctx context.Context, handle Handler) error
}

// Identifiable is implemented by events the sink publishes.
type Identifiable interface {
	Identifier() string
	GetUploadID() string
	Type() string
}

const ReportValidatedEventType = "ReportValidated"

// ReportValidated is published after a report is durably stored. It encodes
// as the normalized inbound message so downstream consumers read the same
// shape pipeline services publish.
type ReportValidated struct {
	ReportID string
	UploadID string
	Body     json.RawMessage
}

func NewReportValidated(reportID, uploadID string, body []byte) *ReportValidated {
	return &ReportValidated{ReportID: reportID, UploadID: uploadID, Body: body}
}

func (r *ReportValidated) Identifier() string {
	return r.ReportID
}

func (r *ReportValidated) GetUploadID() string {
	return r.UploadID
}

func (r *ReportValidated) Type() string {
	return ReportValidatedEventType
}

func (r *ReportValidated) MarshalJSON() ([]byte, error) {
	if len(r.Body) == 0 {
		return []byte("null"), nil
	}
	return r.Body, nil
}

func (r *ReportValidated) UnmarshalJSON(b []byte) error {
	r.Body = append(json.RawMessage(nil), b...)
	var ids struct {
		UploadID string `json:"upload_id"`
	}
	if err := json.Unmarshal(b, &ids); err == nil {
		r.UploadID = ids.UploadID
	}
	return nil
}
