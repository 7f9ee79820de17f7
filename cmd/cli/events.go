package cli

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/event"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
)

// NewEventPublisher builds the publishers validated reports are forwarded
// to. Without a configured topic events go to defaultBus and the local events
// folder.
func NewEventPublisher[T event.Identifiable](ctx context.Context, appConfig appconfig.AppConfig, defaultBus event.Publisher[T]) (event.Publishers[T], error) {
	p := event.Publishers[T]{}

	if appConfig.SNSPublisherConnection != nil {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return p, err
		}
		client := sns.NewFromConfig(cfg, func(o *sns.Options) {
			if appConfig.SNSPublisherConnection.Endpoint != "" {
				o.BaseEndpoint = aws.String(appConfig.SNSPublisherConnection.Endpoint)
			}
		})
		snsPub := &event.SNSPublisher[T]{
			Client:   client,
			TopicArn: appConfig.SNSPublisherConnection.TopicArn,
		}
		health.Register(snsPub)
		p = append(p, snsPub)
	}

	if appConfig.PublisherConnection != nil {
		ap, err := event.NewAzurePublisher[T](ctx, *appConfig.PublisherConnection)
		if err != nil {
			return p, err
		}
		health.Register(ap)
		p = append(p, ap)
	}

	if len(p) < 1 {
		if defaultBus != nil {
			p = append(p, defaultBus)
		}
		p = append(p, &event.FilePublisher[T]{
			Dir: appConfig.LocalEventsFolder,
		})
	}

	return p, nil
}
