package event

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"nhooyr.io/websocket"
)

func NewAMQPServiceBusClient(connString string) (*azservicebus.Client, error) {
	newWebSocketConnFn := func(ctx context.Context, args azservicebus.NewWebSocketConnArgs) (net.Conn, error) {
		opts := &websocket.DialOptions{Subprotocols: []string{"amqp"}}
		wssConn, _, err := websocket.Dial(ctx, args.Host, opts)
		if err != nil {
			return nil, err
		}

		return websocket.NetConn(ctx, wssConn, websocket.MessageBinary), nil
	}
	return azservicebus.NewClientFromConnectionString(connString, &azservicebus.ClientOptions{
		NewWebSocketConn: newWebSocketConnFn, // Setting this option so messages are sent to port 443.
	})
}

func NewAzurePublisher[T Identifiable](ctx context.Context, pubConn appconfig.AzureQueueConfig) (*AzurePublisher[T], error) {
	client, err := NewAMQPServiceBusClient(pubConn.ConnectionString)
	if err != nil {
		logger.Error("failed to connect to event service bus", "error", err)
		return nil, err
	}
	queueOrTopic := pubConn.Queue
	if queueOrTopic == "" {
		queueOrTopic = pubConn.Topic
	}
	sender, err := client.NewSender(queueOrTopic, nil)
	if err != nil {
		logger.Error("failed to configure event publisher", "error", err)
		return nil, err
	}
	adminClient, err := admin.NewClientFromConnectionString(pubConn.ConnectionString, nil)
	if err != nil {
		logger.Error("failed to connect to service bus admin client", "error", err)
		return nil, err
	}

	return &AzurePublisher[T]{
		Context:     ctx,
		Sender:      sender,
		Config:      pubConn,
		AdminClient: adminClient,
	}, nil
}

type AzurePublisher[T Identifiable] struct {
	Context     context.Context
	Sender      *azservicebus.Sender
	Config      appconfig.AzureQueueConfig
	AdminClient *admin.Client
}

func (ap *AzurePublisher[T]) Publish(ctx context.Context, event T) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	id := event.Identifier()
	contentType := "application/json"

	return ap.Sender.SendMessage(ctx, &azservicebus.Message{
		MessageID:   &id,
		ContentType: &contentType,
		Body:        b,
		ApplicationProperties: map[string]any{
			"upload_id":  event.GetUploadID(),
			"event_type": event.Type(),
		},
	}, nil)
}

func (ap *AzurePublisher[T]) Close() error {
	return ap.Sender.Close(ap.Context)
}

func (ap *AzurePublisher[T]) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp = models.HealthyResp(models.SERVICE_BUS)
	return entityHealth(ctx, ap.AdminClient, ap.Config, rsp)
}

func entityHealth(ctx context.Context, adminClient *admin.Client, conf appconfig.AzureQueueConfig, rsp models.ServiceHealthResp) models.ServiceHealthResp {
	if conf.Queue != "" {
		rsp.Service = fmt.Sprintf("%s queue %s", models.SERVICE_BUS, conf.Queue)
		queueResp, err := adminClient.GetQueue(ctx, conf.Queue, nil)
		if err != nil {
			return rsp.BuildErrorResponse(err)
		}
		if queueResp == nil {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus queue %s not found", conf.Queue))
		}
		if *queueResp.Status != admin.EntityStatusActive {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus queue %s status: %s", conf.Queue, *queueResp.Status))
		}
		return rsp
	}

	if conf.Subscription != "" {
		rsp.Service = fmt.Sprintf("%s subscription %s", models.SERVICE_BUS, conf.Subscription)
		subResp, err := adminClient.GetSubscription(ctx, conf.Topic, conf.Subscription, nil)
		if err != nil {
			return rsp.BuildErrorResponse(err)
		}
		if subResp == nil {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus subscription %s not found", conf.Subscription))
		}
		if *subResp.Status != admin.EntityStatusActive {
			return rsp.BuildErrorResponse(fmt.Errorf("service bus subscription %s status: %s", conf.Subscription, *subResp.Status))
		}
		return rsp
	}

	rsp.Service = fmt.Sprintf("%s topic %s", models.SERVICE_BUS, conf.Topic)
	topicResp, err := adminClient.GetTopic(ctx, conf.Topic, nil)
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	if topicResp == nil {
		return rsp.BuildErrorResponse(fmt.Errorf("service bus topic %s not found", conf.Topic))
	}
	if *topicResp.Status != admin.EntityStatusActive {
		return rsp.BuildErrorResponse(fmt.Errorf("service bus topic %s status: %s", conf.Topic, *topicResp.Status))
	}
	return rsp
}

func NewAzureListener(ctx context.Context, subConn appconfig.AzureQueueConfig) (*AzureListener, error) {
	client, err := NewAMQPServiceBusClient(subConn.ConnectionString)
	if err != nil {
		logger.Error("failed to connect to event service bus", "error", err)
		return nil, err
	}
	var receiver *azservicebus.Receiver
	if subConn.Queue != "" {
		receiver, err = client.NewReceiverForQueue(subConn.Queue, nil)
	} else {
		receiver, err = client.NewReceiverForSubscription(subConn.Topic, subConn.Subscription, nil)
	}
	if err != nil {
		logger.Error("failed to configure report listener", "error", err)
		return nil, err
	}
	adminClient, err := admin.NewClientFromConnectionString(subConn.ConnectionString, nil)
	if err != nil {
		logger.Error("failed to connect to service bus admin client", "error", err)
		return nil, err
	}

	maxMessages := subConn.MaxMessages
	if maxMessages == 0 {
		maxMessages = MaxMessages
	}

	return &AzureListener{
		Context:     ctx,
		Receiver:    receiver,
		Config:      subConn,
		AdminClient: adminClient,
		Max:         maxMessages,
	}, nil
}

// AzureListener receives reports from a Service Bus queue or topic
// subscription in peek-lock mode.
type AzureListener struct {
	Context     context.Context
	Receiver    *azservicebus.Receiver
	Config      appconfig.AzureQueueConfig
	AdminClient *admin.Client
	Max         int
}

func (al *AzureListener) Listen(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			msgs, err := al.Receiver.ReceiveMessages(ctx, al.Max, nil)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

			for _, m := range msgs {
				handle(ctx, al.envelope(m))
			}
		}
	}
}

func (al *AzureListener) envelope(m *azservicebus.ReceivedMessage) *RawEnvelope {
	return NewEnvelope(m.Body, models.SourceServiceBus, m.MessageID, int(m.DeliveryCount),
		func(ctx context.Context) error {
			return al.Receiver.CompleteMessage(ctx, m, nil)
		},
		func(ctx context.Context) error {
			return al.Receiver.AbandonMessage(ctx, m, nil)
		},
	)
}

// Length reports the active message count of the queue or subscription.
func (al *AzureListener) Length(ctx context.Context) (float64, error) {
	if al.Config.Queue != "" {
		resp, err := al.AdminClient.GetQueueRuntimeProperties(ctx, al.Config.Queue, nil)
		if err != nil {
			return 0, err
		}
		return float64(resp.ActiveMessageCount), nil
	}
	resp, err := al.AdminClient.GetSubscriptionRuntimeProperties(ctx, al.Config.Topic, al.Config.Subscription, nil)
	if err != nil {
		return 0, err
	}
	return float64(resp.ActiveMessageCount), nil
}

func (al *AzureListener) Close() error {
	return al.Receiver.Close(al.Context)
}

func (al *AzureListener) Health(ctx context.Context) (rsp models.ServiceHealthResp) {
	rsp = models.HealthyResp(models.SERVICE_BUS)
	return entityHealth(ctx, al.AdminClient, al.Config, rsp)
}
