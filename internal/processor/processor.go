package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/deadletter"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/event"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/normalize"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/reconcile"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/sinkerrors"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
	"github.com/dustin/go-humanize"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const (
	DefaultMaxMessageBytes  = 1 << 20
	DefaultMaxDeliveryCount = 10
)

// Processor takes one inbound message from the transport to the store and
// settles it. A message is acked only once it is durably stored as a report
// or a dead letter.
type Processor struct {
	Gate        *validation.Gate
	Engine      *reconcile.Engine
	DeadLetters *deadletter.Router

	// Publishers receive every stored report when Forward is set.
	Publishers event.Publishers[*event.ReportValidated]
	Forward    bool

	MaxMessageBytes  int
	MaxDeliveryCount int
}

func (p *Processor) maxMessageBytes() int {
	if p.MaxMessageBytes <= 0 {
		return DefaultMaxMessageBytes
	}
	return p.MaxMessageBytes
}

func (p *Processor) maxDeliveryCount() int {
	if p.MaxDeliveryCount <= 0 {
		return DefaultMaxDeliveryCount
	}
	return p.MaxDeliveryCount
}

// Handle processes env and acks or nacks it. It matches event.Handler.
func (p *Processor) Handle(ctx context.Context, env *event.RawEnvelope) {
	start := time.Now()
	ctx = sloger.SetMessage(ctx, string(env.Source), env.MessageID)
	log := sloger.GetLogger(ctx)

	metrics.ActiveMessages.Inc()
	defer func() {
		metrics.ActiveMessages.Dec()
		metrics.ProcessingSeconds.WithLabelValues(string(env.Source)).Observe(time.Since(start).Seconds())
	}()

	// settle even when the message budget ran out
	settleCtx := context.WithoutCancel(ctx)

	err := p.process(ctx, env)
	if err == nil {
		if err := env.Ack(settleCtx); err != nil {
			log.Error("failed to ack message", "error", err)
		}
		return
	}

	if errors.Is(err, sinkerrors.ErrBadState) && env.DeliveryCount >= p.maxDeliveryCount() {
		log.Warn("message reached the delivery limit", "deliveryCount", env.DeliveryCount, "error", err)
		reasons := []string{
			deadletter.RetriesExhausted,
			fmt.Sprintf("%s after %d deliveries: %v", deadletter.ExhaustedRedeliver, env.DeliveryCount, err),
		}
		partial := deadletter.SafeParse([]byte(normalize.Normalize(string(env.Body))))
		_, dlErr := p.DeadLetters.Quarantine(settleCtx, env, reasons, nil, partial)
		if dlErr == nil {
			if err := env.Ack(settleCtx); err != nil {
				log.Error("failed to ack message", "error", err)
			}
			return
		}
		err = errors.Join(err, dlErr)
	}

	log.Error("failed to process message, returning it for redelivery", "deliveryCount", env.DeliveryCount, "error", err)
	metrics.ReportsTotal.WithLabelValues(string(env.Source), metrics.ResultRedelivered).Inc()
	if err := env.Nack(settleCtx); err != nil {
		log.Error("failed to nack message", "error", err)
	}
} // .Handle

// process returns nil once the message is stored as a report or as a dead
// letter. Any error means the message goes back to the transport.
func (p *Processor) process(ctx context.Context, env *event.RawEnvelope) error {
	if len(env.Body) > p.maxMessageBytes() {
		reason := fmt.Sprintf("Report rejected: message size %s exceeds the limit of %s",
			humanize.IBytes(uint64(len(env.Body))), humanize.IBytes(uint64(p.maxMessageBytes())))
		return p.quarantine(ctx, env, []string{deadletter.Structural(reason)}, nil, nil)
	}

	raw := normalize.Normalize(string(env.Body))

	res := p.Gate.Validate(ctx, raw, "")
	if res.Err != nil {
		return sinkerrors.BadState("load schema", res.Err)
	}
	if !res.Ok {
		return p.quarantine(ctx, env, res.Reasons(), res.SchemasAttempted, deadletter.SafeParse([]byte(raw)))
	}

	msg, err := validation.Decode(raw)
	if err != nil {
		reason := deadletter.Structural(validation.ReasonMalformed + ": " + err.Error())
		return p.quarantine(ctx, env, []string{reason}, res.SchemasAttempted, deadletter.SafeParse([]byte(raw)))
	}
	ctx = sloger.SetUploadId(ctx, msg.UploadID)

	disposition, ok := msg.Disposition()
	if !ok {
		reason := deadletter.Structural(fmt.Sprintf("Report rejected: unsupported disposition_type %q", msg.DispositionType))
		return p.quarantine(ctx, env, []string{reason}, res.SchemasAttempted, msg)
	}

	id, err := p.Engine.Reconcile(ctx, reconcile.ValidatedMessage{
		Message:    msg,
		Source:     env.Source,
		ReceivedAt: env.ReceivedAt,
	}, disposition)
	if err != nil {
		if sinkerrors.Quarantinable(err) {
			return p.quarantine(ctx, env, []string{deadletter.Structural(err.Error())}, res.SchemasAttempted, msg)
		}
		return err
	}

	p.forward(ctx, event.NewReportValidated(id, msg.UploadID, []byte(raw)), env.Source)
	return nil
} // .process

func (p *Processor) quarantine(ctx context.Context, env *event.RawEnvelope, reasons []string, schemas []string, partial *models.CreateReportMessage) error {
	_, err := p.DeadLetters.Quarantine(ctx, env, reasons, schemas, partial)
	return err
}

// forward publishes a stored report. The report is already durable so a
// failure here is only logged.
func (p *Processor) forward(ctx context.Context, ev *event.ReportValidated, source models.Source) {
	if !p.Forward || len(p.Publishers) == 0 {
		return
	}
	if err := p.Publishers.Publish(ctx, ev); err != nil {
		sloger.GetLogger(ctx).Error("failed to forward report", "reportId", ev.ReportID, "error", err)
		return
	}
	metrics.ReportsTotal.WithLabelValues(string(source), metrics.ResultForwarded).Inc()
}
