package couchbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
	"github.com/couchbase/gocb/v2"
)

// partitionKeyField is added to every stored document. Couchbase has no
// partitions so queries filter on it instead.
const partitionKeyField = "_partitionKey"

const readyTimeout = 10 * time.Second

func NewCluster(conf appconfig.CouchbaseConfig) (*gocb.Cluster, error) {
	cluster, err := gocb.Connect(conf.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: conf.Username,
			Password: conf.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to couchbase: %w", err)
	}
	return cluster, nil
}

// NewStore opens both collections in bucket/scope once the bucket is ready.
func NewStore(cluster *gocb.Cluster, bucket, scope, reports, deadLetters string) (storage.Store, error) {
	b := cluster.Bucket(bucket)
	if err := b.WaitUntilReady(readyTimeout, nil); err != nil {
		return storage.Store{}, fmt.Errorf("couchbase bucket %s: %w", bucket, err)
	}
	s := b.Scope(scope)
	return storage.Store{
		Reports:     NewCollection(s.Collection(reports), s, reports),
		DeadLetters: NewCollection(s.Collection(deadLetters), s, deadLetters),
	}, nil
}

// KeyValue is the part of *gocb.Collection the adapter writes through.
type KeyValue interface {
	Insert(id string, val interface{}, opts *gocb.InsertOptions) (*gocb.MutationResult, error)
	Remove(id string, opts *gocb.RemoveOptions) (*gocb.MutationResult, error)
}

// Querier is the part of *gocb.Scope the adapter reads through.
type Querier interface {
	Query(statement string, opts *gocb.QueryOptions) (*gocb.QueryResult, error)
}

type Collection struct {
	KV     KeyValue
	Scope  Querier
	handle storage.CollectionHandle
}

func NewCollection(kv KeyValue, scope Querier, name string) *Collection {
	return &Collection{KV: kv, Scope: scope, handle: storage.CouchbaseHandle(name)}
}

func (c *Collection) Handle() storage.CollectionHandle {
	return c.handle
}

func (c *Collection) CreateItem(ctx context.Context, id string, item any, partitionKey string) storage.WriteResult {
	doc, err := storage.ToDocument(item)
	if err != nil {
		return storage.FatalResult(err)
	}
	doc[partitionKeyField] = partitionKey

	_, err = c.KV.Insert(id, doc, &gocb.InsertOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentExists) {
		return storage.AlreadyStored(id, err)
	}
	return classify(err)
}

// DeleteItem removes by key. Keys are unique across the collection so the
// partition key is not needed.
func (c *Collection) DeleteItem(ctx context.Context, id string, _ string) storage.WriteResult {
	_, err := c.KV.Remove(id, &gocb.RemoveOptions{Context: ctx})
	if errors.Is(err, gocb.ErrDocumentNotFound) {
		return storage.Succeeded()
	}
	return classify(err)
}

// Statement renders q, scoping it to its partition through the stored
// partition key field.
func (c *Collection) Statement(q storage.Query) (string, []any) {
	if q.PartitionKey != "" {
		q = q.Where(partitionKeyField, q.PartitionKey)
	}
	return c.handle.Render(q)
}

func (c *Collection) QueryItems(ctx context.Context, q storage.Query) ([]json.RawMessage, error) {
	text, args := c.Statement(q)
	rows, err := c.Scope.Query(text, &gocb.QueryOptions{
		PositionalParameters: args,
		// a REPLACE must see the report it just inserted
		ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
		Context:         ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.handle.Name, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var doc map[string]any
		if err := rows.Row(&doc); err != nil {
			return nil, fmt.Errorf("query %s: %w", c.handle.Name, err)
		}
		delete(doc, partitionKeyField)
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", c.handle.Name, err)
	}
	return out, nil
}

func (c *Collection) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.COUCHBASE_DB + " " + c.handle.Name)
	rows, err := c.Scope.Query("SELECT RAW 1", &gocb.QueryOptions{Context: ctx})
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	if err := rows.Close(); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

// classify maps a gocb error to a write outcome. The SDK does not surface a
// server back-off hint, so throttles use the controller interval.
func classify(err error) storage.WriteResult {
	switch {
	case err == nil:
		return storage.Succeeded()
	case errors.Is(err, gocb.ErrTemporaryFailure), errors.Is(err, gocb.ErrRateLimitedFailure):
		return storage.ThrottledResult(0, err)
	case errors.Is(err, gocb.ErrTimeout),
		errors.Is(err, gocb.ErrAmbiguousTimeout),
		errors.Is(err, gocb.ErrUnambiguousTimeout),
		errors.Is(err, gocb.ErrServiceNotAvailable),
		errors.Is(err, gocb.ErrRequestCanceled):
		return storage.TransientResult(err)
	}
	return storage.FatalResult(err)
}
