package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// fields the adapter adds to every stored document
const (
	idField           = "_id"
	partitionKeyField = "_partitionKey"
	createdField      = "_created"
)

// tooManyRequests is returned by the Cosmos DB API for MongoDB when the
// account is throttled.
const tooManyRequests = 16500

func NewClient(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return client, nil
}

func NewStore(client *mongo.Client, database, reports, deadLetters string) storage.Store {
	db := client.Database(database)
	return storage.Store{
		Reports:     NewCollection(db, reports),
		DeadLetters: NewCollection(db, deadLetters),
	}
}

type Collection struct {
	Coll *mongo.Collection
}

func NewCollection(db *mongo.Database, name string) *Collection {
	// nested documents decode as maps so they encode back to plain JSON
	opts := options.Collection().SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	return &Collection{Coll: db.Collection(name, opts)}
}

func (c *Collection) Handle() storage.CollectionHandle {
	return storage.DocumentHandle(c.Coll.Name())
}

func (c *Collection) CreateItem(ctx context.Context, id string, item any, partitionKey string) storage.WriteResult {
	doc, err := storage.ToDocument(item)
	if err != nil {
		return storage.FatalResult(err)
	}
	doc[idField] = id
	doc[partitionKeyField] = partitionKey
	doc[createdField] = time.Now().UTC()

	_, err = c.Coll.InsertOne(ctx, doc)
	return created(id, err)
}

func (c *Collection) DeleteItem(ctx context.Context, id string, partitionKey string) storage.WriteResult {
	_, err := c.Coll.DeleteOne(ctx, bson.D{{Key: idField, Value: id}, {Key: partitionKeyField, Value: partitionKey}})
	return classify(err)
}

// Filter turns q into an equality filter on dotted paths.
func Filter(q storage.Query) bson.D {
	filter := bson.D{}
	if q.PartitionKey != "" {
		filter = append(filter, bson.E{Key: partitionKeyField, Value: q.PartitionKey})
	}
	for _, cond := range q.Conditions {
		filter = append(filter, bson.E{Key: cond.Field, Value: cond.Value})
	}
	return filter
}

func (c *Collection) QueryItems(ctx context.Context, q storage.Query) ([]json.RawMessage, error) {
	opts := options.Find().SetSort(bson.D{{Key: createdField, Value: 1}, {Key: idField, Value: 1}})
	cursor, err := c.Coll.Find(ctx, Filter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.Coll.Name(), err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.Coll.Name(), err)
	}

	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		delete(d, idField)
		delete(d, partitionKeyField)
		delete(d, createdField)
		b, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Collection) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.MONGO_DB + " " + c.Coll.Name())
	if err := c.Coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

func created(id string, err error) storage.WriteResult {
	if mongo.IsDuplicateKeyError(err) {
		return storage.AlreadyStored(id, err)
	}
	return classify(err)
}

func classify(err error) storage.WriteResult {
	if err == nil {
		return storage.Succeeded()
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(tooManyRequests) {
		return storage.ThrottledResult(retryAfter(err.Error()), err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return storage.TransientResult(err)
	}
	if se != nil {
		return storage.FatalResult(err)
	}
	return storage.TransientResult(err)
}

// retryAfter reads the RetryAfterMs=<n> hint Cosmos DB puts in the message.
func retryAfter(msg string) time.Duration {
	_, rest, ok := strings.Cut(msg, "RetryAfterMs=")
	if !ok {
		return 0
	}
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end > 0 {
		rest = rest[:end]
	}
	d, err := time.ParseDuration(rest + "ms")
	if err != nil {
		return 0
	}
	return d
}
