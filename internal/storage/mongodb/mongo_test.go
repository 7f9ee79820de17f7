package mongodb

import (
	"errors"
	"testing"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestFilter(t *testing.T) {
	f := Filter(storage.NewQuery("u1").Where("uploadId", "u1").Where("stageInfo.action", "copy"))
	assert.Equal(t, bson.D{
		{Key: "_partitionKey", Value: "u1"},
		{Key: "uploadId", Value: "u1"},
		{Key: "stageInfo.action", Value: "copy"},
	}, f)

	assert.Equal(t, bson.D{}, Filter(storage.NewQuery("")))
}

func TestClassify(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "duplicate key"}}}
	throttled := mongo.CommandError{Code: tooManyRequests, Message: "Request rate is large. RetryAfterMs=120, Details='...'"}

	assert.Equal(t, storage.Success, classify(nil).Outcome)
	assert.Equal(t, storage.Fatal, classify(dup).Outcome)

	res := classify(throttled)
	assert.Equal(t, storage.Throttled, res.Outcome)
	assert.Equal(t, 120*time.Millisecond, res.RetryAfter)

	assert.Equal(t, storage.Fatal, classify(mongo.CommandError{Code: 13, Message: "unauthorized"}).Outcome)
	assert.Equal(t, storage.Transient, classify(errors.New("server selection timeout")).Outcome)
}

func TestCreatedDuplicateIsSuccess(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "duplicate key"}}}
	assert.Equal(t, storage.Success, created("r1", dup).Outcome)
	assert.Equal(t, storage.Transient, created("r1", errors.New("server selection timeout")).Outcome)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Millisecond, retryAfter("RetryAfterMs=5"))
	assert.Equal(t, time.Duration(0), retryAfter("no hint"))
	assert.Equal(t, time.Duration(0), retryAfter("RetryAfterMs=abc"))
}
