package event

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const rabbitDeliveryCountHeader = "x-delivery-count"

// RabbitMQListener consumes a queue with manual acks. Quorum queues report
// redeliveries in the x-delivery-count header; for classic queues the
// tracker counts them.
type RabbitMQListener struct {
	Config  appconfig.RabbitMQConfig
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Tracker DeliveryTracker
}

func NewRabbitMQListener(conf appconfig.RabbitMQConfig, tracker DeliveryTracker) (*RabbitMQListener, error) {
	conn, err := amqp.Dial(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.Qos(conf.Prefetch, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set rabbitmq prefetch: %w", err)
	}
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	return &RabbitMQListener{Config: conf, Conn: conn, Channel: ch, Tracker: tracker}, nil
}

func (rl *RabbitMQListener) Listen(ctx context.Context, handle Handler) error {
	deliveries, err := rl.Channel.ConsumeWithContext(ctx, rl.Config.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			env, err := rl.envelope(ctx, d)
			if err != nil {
				logger.Error("failed to track rabbitmq delivery", "error", err)
				if err := d.Nack(false, true); err != nil {
					logger.Error("failed to nack rabbitmq delivery", "error", err)
				}
				continue
			}
			handle(ctx, env)
		}
	}
}

func (rl *RabbitMQListener) envelope(ctx context.Context, d amqp.Delivery) (*RawEnvelope, error) {
	id := d.MessageId
	if id == "" {
		sum := md5.Sum(d.Body)
		id = hex.EncodeToString(sum[:])
	}

	count, tracked := headerCount(d.Headers)
	if !tracked {
		var err error
		if count, err = rl.Tracker.Attempt(ctx, id); err != nil {
			return nil, err
		}
	}

	return NewEnvelope(d.Body, models.SourceRabbitMQ, id, count,
		func(ctx context.Context) error {
			if err := d.Ack(false); err != nil {
				return err
			}
			if !tracked {
				return rl.Tracker.Forget(ctx, id)
			}
			return nil
		},
		func(context.Context) error {
			return d.Nack(false, true)
		},
	), nil
}

// headerCount reads the quorum queue delivery count. The header holds the
// number of earlier deliveries.
func headerCount(h amqp.Table) (int, bool) {
	switch v := h[rabbitDeliveryCountHeader].(type) {
	case int64:
		return int(v) + 1, true
	case int32:
		return int(v) + 1, true
	case int:
		return v + 1, true
	}
	return 0, false
}

func (rl *RabbitMQListener) Length(_ context.Context) (float64, error) {
	q, err := rl.Channel.QueueDeclarePassive(rl.Config.Queue, true, false, false, false, nil)
	if err != nil {
		return 0, err
	}
	return float64(q.Messages), nil
}

func (rl *RabbitMQListener) Close() error {
	return rl.Conn.Close()
}

func (rl *RabbitMQListener) Health(_ context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.RABBITMQ_QUEUE + " " + rl.Config.Queue)
	if rl.Conn == nil || rl.Conn.IsClosed() {
		return rsp.BuildErrorResponse(errors.New("rabbitmq connection is closed"))
	}
	return rsp
}
