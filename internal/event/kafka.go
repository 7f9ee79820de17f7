package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
)

const (
	defaultKafkaSessionTimeout = 30 * time.Second
	defaultKafkaHeartbeat      = 3 * time.Second
	defaultKafkaConsumeBackoff = time.Second
	// KafkaRedeliveryDelay is waited before a nacked record is handed out again.
	KafkaRedeliveryDelay = time.Second
)

// KafkaListener consumes a topic through a consumer group. Offsets are
// committed only when a record is acked. A nacked record is redelivered in
// process, so records of one partition are handled one at a time.
type KafkaListener struct {
	Config  appconfig.KafkaConfig
	Group   sarama.ConsumerGroup
	Tracker DeliveryTracker

	ready atomic.Bool
}

func NewKafkaListener(conf appconfig.KafkaConfig, tracker DeliveryTracker) (*KafkaListener, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "report-sink"
	cfg.Consumer.Group.Session.Timeout = defaultKafkaSessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = defaultKafkaHeartbeat
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(conf.Brokers, conf.GroupID, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: create consumer group: %w", err)
	}
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	kl := &KafkaListener{Config: conf, Group: group, Tracker: tracker}
	go func() {
		for err := range group.Errors() {
			logger.Error("kafka consumer error", "error", err)
		}
	}()
	return kl, nil
}

func (kl *KafkaListener) Listen(ctx context.Context, handle Handler) error {
	h := &kafkaGroupHandler{listener: kl, handle: handle}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := kl.Group.Consume(ctx, []string{kl.Config.Topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Error("kafka consume error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(defaultKafkaConsumeBackoff):
			}
		}
	}
}

type kafkaGroupHandler struct {
	listener *KafkaListener
	handle   Handler
}

func (h *kafkaGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.listener.ready.Store(true)
	logger.Info("kafka consumer group ready", "group", h.listener.Config.GroupID)
	return nil
}

func (h *kafkaGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.listener.ready.Store(false)
	return nil
}

func (h *kafkaGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for msg := range claim.Messages() {
		id := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
		for {
			acked, err := h.deliver(ctx, session, msg, id)
			if err != nil {
				return err
			}
			if acked {
				break
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(KafkaRedeliveryDelay):
			}
		}
	}
	return nil
}

// deliver hands msg to the handler once and waits for it to be settled.
func (h *kafkaGroupHandler) deliver(ctx context.Context, session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage, id string) (bool, error) {
	count, err := h.listener.Tracker.Attempt(ctx, id)
	if err != nil {
		return false, err
	}
	settled := make(chan bool, 1)
	env := NewEnvelope(msg.Value, models.SourceKafka, id, count,
		func(ctx context.Context) error {
			session.MarkMessage(msg, "")
			session.Commit()
			settled <- true
			return h.listener.Tracker.Forget(ctx, id)
		},
		func(context.Context) error {
			settled <- false
			return nil
		},
	)
	h.handle(ctx, env)
	select {
	case acked := <-settled:
		return acked, nil
	case <-ctx.Done():
		// rebalance or shutdown; the uncommitted record is delivered again
		return true, nil
	}
}

func (kl *KafkaListener) Close() error {
	return kl.Group.Close()
}

func (kl *KafkaListener) Health(_ context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.KAFKA_TOPIC + " " + kl.Config.Topic)
	if !kl.ready.Load() {
		return rsp.BuildErrorResponse(errors.New("consumer group has not joined"))
	}
	return rsp
}
