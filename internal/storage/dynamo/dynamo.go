package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
)

// Tables are keyed by partitionKey (hash) and id (range).
const (
	PartitionKeyAttribute = "partitionKey"
	IDAttribute           = "id"
)

// Client is the part of the DynamoDB API the adapter uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

func NewClient(cfg aws.Config, endpoint string) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

func NewStore(client Client, prefix, reports, deadLetters string) storage.Store {
	return storage.Store{
		Reports:     NewCollection(client, prefix+reports),
		DeadLetters: NewCollection(client, prefix+deadLetters),
	}
}

type Collection struct {
	Client Client
	Table  string
	handle storage.CollectionHandle
}

func NewCollection(client Client, table string) *Collection {
	return &Collection{Client: client, Table: table, handle: storage.DynamoHandle(table)}
}

func (c *Collection) Handle() storage.CollectionHandle {
	return c.handle
}

func (c *Collection) CreateItem(ctx context.Context, id string, item any, partitionKey string) storage.WriteResult {
	doc, err := storage.ToDocument(item)
	if err != nil {
		return storage.FatalResult(err)
	}
	doc[IDAttribute] = id
	doc[PartitionKeyAttribute] = partitionKey

	av, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return storage.FatalResult(err)
	}
	_, err = c.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.Table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": IDAttribute,
		},
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return storage.AlreadyStored(id, err)
	}
	return classify(err)
}

func (c *Collection) DeleteItem(ctx context.Context, id string, partitionKey string) storage.WriteResult {
	_, err := c.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.Table),
		Key: map[string]types.AttributeValue{
			PartitionKeyAttribute: &types.AttributeValueMemberS{Value: partitionKey},
			IDAttribute:           &types.AttributeValueMemberS{Value: id},
		},
	})
	// deleting an absent key is not an error in DynamoDB
	return classify(err)
}

func (c *Collection) QueryItems(ctx context.Context, q storage.Query) ([]json.RawMessage, error) {
	if q.PartitionKey != "" {
		q = q.Where(PartitionKeyAttribute, q.PartitionKey)
	}
	text, args := c.handle.Render(q)
	params := make([]types.AttributeValue, len(args))
	for i, a := range args {
		params[i] = &types.AttributeValueMemberS{Value: fmt.Sprint(a)}
	}

	var out []json.RawMessage
	var next *string
	for {
		page, err := c.Client.ExecuteStatement(ctx, &dynamodb.ExecuteStatementInput{
			Statement:  aws.String(text),
			Parameters: params,
			NextToken:  next,
		})
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", c.Table, err)
		}
		for _, item := range page.Items {
			var doc map[string]any
			if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
				return nil, err
			}
			delete(doc, PartitionKeyAttribute)
			b, err := json.Marshal(doc)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
		if page.NextToken == nil {
			return out, nil
		}
		next = page.NextToken
	}
} // .QueryItems

func (c *Collection) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.DYNAMO_DB + " " + c.Table)
	if _, err := c.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.Table)}); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

// classify maps a DynamoDB error code to a write outcome. DynamoDB does not
// say how long to back off, so throttles use the controller interval.
func classify(err error) storage.WriteResult {
	if err == nil {
		return storage.Succeeded()
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return storage.TransientResult(err)
	}
	switch apiErr.ErrorCode() {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return storage.ThrottledResult(0, err)
	case "InternalServerError", "ServiceUnavailable", "TransactionInProgressException":
		return storage.TransientResult(err)
	}
	if apiErr.ErrorFault() == smithy.FaultServer {
		return storage.TransientResult(err)
	}
	return storage.FatalResult(err)
}
