package dynamo

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	Client
	put        []*dynamodb.PutItemInput
	statements []*dynamodb.ExecuteStatementInput
	pages      []*dynamodb.ExecuteStatementOutput
	putErr     error
}

func (f *fakeClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.put = append(f.put, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeClient) ExecuteStatement(_ context.Context, in *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	f.statements = append(f.statements, in)
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func TestCreateItem(t *testing.T) {
	f := &fakeClient{}
	c := NewCollection(f, "dex-Reports")

	res := c.CreateItem(context.Background(), "r1", map[string]any{"id": "r1", "uploadId": "u1"}, "u1")
	require.True(t, res.Ok())
	require.Len(t, f.put, 1)
	assert.Equal(t, "dex-Reports", aws.ToString(f.put[0].TableName))
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u1"}, f.put[0].Item[PartitionKeyAttribute])
	assert.Equal(t, "attribute_not_exists(#id)", aws.ToString(f.put[0].ConditionExpression))

	f.putErr = &types.ConditionalCheckFailedException{Message: aws.String("exists")}
	assert.Equal(t, storage.Success, c.CreateItem(context.Background(), "r1", map[string]any{}, "u1").Outcome)

	f.putErr = &types.ResourceNotFoundException{Message: aws.String("no table")}
	assert.Equal(t, storage.Fatal, c.CreateItem(context.Background(), "r1", map[string]any{}, "u1").Outcome)
}

func TestQueryItemsPages(t *testing.T) {
	item := func(id string) map[string]types.AttributeValue {
		return map[string]types.AttributeValue{
			"id":           &types.AttributeValueMemberS{Value: id},
			"partitionKey": &types.AttributeValueMemberS{Value: "u1"},
			"stageInfo": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"action": &types.AttributeValueMemberS{Value: "copy"},
			}},
		}
	}
	f := &fakeClient{pages: []*dynamodb.ExecuteStatementOutput{
		{Items: []map[string]types.AttributeValue{item("r1")}, NextToken: aws.String("t1")},
		{Items: []map[string]types.AttributeValue{item("r2")}},
	}}
	c := NewCollection(f, "Reports")

	docs, err := c.QueryItems(context.Background(), storage.NewQuery("u1").Where("stageInfo.action", "copy"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.JSONEq(t, `{"id":"r1","stageInfo":{"action":"copy"}}`, string(docs[0]))

	require.Len(t, f.statements, 2)
	assert.Equal(t, `SELECT * FROM "Reports" WHERE ("stageInfo"."action" = ? AND "partitionKey" = ?)`, aws.ToString(f.statements[0].Statement))
	assert.Equal(t, []types.AttributeValue{
		&types.AttributeValueMemberS{Value: "copy"},
		&types.AttributeValueMemberS{Value: "u1"},
	}, f.statements[0].Parameters)
	assert.Nil(t, f.statements[0].NextToken)
	assert.Equal(t, "t1", aws.ToString(f.statements[1].NextToken))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		outcome storage.Outcome
	}{
		{nil, storage.Success},
		{&types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}, storage.Throttled},
		{&smithy.GenericAPIError{Code: "ThrottlingException"}, storage.Throttled},
		{&types.InternalServerError{Message: aws.String("oops")}, storage.Transient},
		{&types.ResourceNotFoundException{Message: aws.String("no table")}, storage.Fatal},
		{&smithy.GenericAPIError{Code: "SomethingNew", Fault: smithy.FaultServer}, storage.Transient},
		{errors.New("connection reset"), storage.Transient},
	}
	for _, tt := range tests {
		if got := classify(tt.err).Outcome; got != tt.outcome {
			t.Fatalf("%v: expected %v, got %v", tt.err, tt.outcome, got)
		}
	}
}
