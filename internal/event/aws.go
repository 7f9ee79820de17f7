package event

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
)

const sqsWaitTimeSeconds = 20

type SQSClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// SQSListener long polls an SQS queue. Deleting a message acks it and
// resetting its visibility nacks it.
type SQSListener struct {
	Client      SQSClient
	QueueURL    string
	MaxMessages int32
}

func (sl *SQSListener) Listen(ctx context.Context, handle Handler) error {
	max := sl.MaxMessages
	if max <= 0 {
		max = MaxMessages
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		out, err := sl.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &sl.QueueURL,
			MaxNumberOfMessages: max,
			WaitTimeSeconds:     sqsWaitTimeSeconds,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, m := range out.Messages {
			handle(ctx, sl.envelope(m))
		}
	}
}

func (sl *SQSListener) envelope(m types.Message) *RawEnvelope {
	count, _ := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)])
	handle := m.ReceiptHandle
	return NewEnvelope([]byte(aws.ToString(m.Body)), models.SourceAWS, aws.ToString(m.MessageId), count,
		func(ctx context.Context) error {
			_, err := sl.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      &sl.QueueURL,
				ReceiptHandle: handle,
			})
			return err
		},
		func(ctx context.Context) error {
			_, err := sl.Client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
				QueueUrl:          &sl.QueueURL,
				ReceiptHandle:     handle,
				VisibilityTimeout: 0,
			})
			return err
		},
	)
}

func (sl *SQSListener) Length(ctx context.Context) (float64, error) {
	out, err := sl.Client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &sl.QueueURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)])
	return float64(n), err
}

func (sl *SQSListener) Close() error {
	return nil
}

func (sl *SQSListener) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.SQS_QUEUE)
	if _, err := sl.Length(ctx); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

type SNSPublisher[T Identifiable] struct {
	Client   *sns.Client
	TopicArn string
}

func (s *SNSPublisher[T]) Publish(ctx context.Context, e T) error {
	var b bytes.Buffer
	encoder := base64.NewEncoder(base64.StdEncoding, &b)
	jsonEncoder := json.NewEncoder(encoder)
	if err := jsonEncoder.Encode(e); err != nil {
		return err
	}
	encoder.Close()
	m := b.String()
	result, err := s.Client.Publish(ctx, &sns.PublishInput{
		Message:  &m,
		TopicArn: &s.TopicArn,
	})
	if err != nil {
		return err
	}
	logger.Debug("SNS event publish response", "messageId", aws.ToString(result.MessageId), "event", e.Identifier())
	return nil
}

func (s *SNSPublisher[T]) Close() error {
	return nil
}

func (s *SNSPublisher[T]) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp("AWS SNS " + s.TopicArn)
	if _, err := s.Client.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: &s.TopicArn}); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}
