package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/event"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/metrics"
)

// NewDeliveryTracker counts deliveries for transports that do not carry a
// delivery count of their own.
func NewDeliveryTracker(appConfig appconfig.AppConfig) (event.DeliveryTracker, error) {
	if appConfig.RedisConnectionString == "" {
		return event.NewMemoryTracker(), nil
	}
	t, err := event.NewRedisTracker(appConfig.RedisConnectionString)
	if err != nil {
		return nil, fmt.Errorf("redis delivery tracker: %w", err)
	}
	health.Register(t)
	return t, nil
}

// NewListener picks the inbound transport. The local inbox folder is used
// when no broker is configured.
func NewListener(ctx context.Context, appConfig appconfig.AppConfig, tracker event.DeliveryTracker) (event.Listener, error) {
	l, name, err := newListener(ctx, appConfig, tracker)
	if err != nil {
		return nil, err
	}
	health.Register(l)
	metrics.RegisterQueue(name, l)
	logger.Info("listening for reports", "transport", name)
	return l, nil
}

func newListener(ctx context.Context, appConfig appconfig.AppConfig, tracker event.DeliveryTracker) (event.Listener, string, error) {
	if appConfig.SQSSubscriberConnection != nil {
		conf := appConfig.SQSSubscriberConnection
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, "", err
		}
		client := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
			if conf.Endpoint != "" {
				o.BaseEndpoint = aws.String(conf.Endpoint)
			}
		})
		batchMax := conf.MaxMessages
		if batchMax <= 0 {
			batchMax = event.MaxMessages
		}
		return &event.SQSListener{
			Client:      client,
			QueueURL:    conf.QueueURL,
			MaxMessages: int32(batchMax),
		}, conf.QueueURL, nil
	} // .if

	if appConfig.SubscriberConnection != nil {
		l, err := event.NewAzureListener(ctx, *appConfig.SubscriberConnection)
		if err != nil {
			return nil, "", err
		}
		name := appConfig.SubscriberConnection.Queue
		if name == "" {
			name = appConfig.SubscriberConnection.Topic + "/" + appConfig.SubscriberConnection.Subscription
		}
		return l, name, nil
	}

	if appConfig.RabbitMQConnection != nil {
		l, err := event.NewRabbitMQListener(*appConfig.RabbitMQConnection, tracker)
		if err != nil {
			return nil, "", err
		}
		return l, appConfig.RabbitMQConnection.Queue, nil
	}

	if appConfig.KafkaConnection != nil {
		l, err := event.NewKafkaListener(*appConfig.KafkaConnection, tracker)
		if err != nil {
			return nil, "", err
		}
		return l, appConfig.KafkaConnection.Topic, nil
	}

	return event.NewDirListener(appConfig.LocalInboxFolder, tracker), "local-inbox", nil
} // .newListener
