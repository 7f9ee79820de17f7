package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/pkg/sloger"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

var ErrNotFound = errors.New("item not found")

// Outcome classifies a single store write attempt.
type Outcome int

const (
	Success Outcome = iota
	Throttled
	Transient
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Throttled:
		return "throttled"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// WriteResult is what a collection reports for a create or delete. Backend
// conditions worth retrying come back as Throttled or Transient results,
// never as panics.
type WriteResult struct {
	Outcome    Outcome
	RetryAfter time.Duration
	Err        error
}

func (r WriteResult) Ok() bool {
	return r.Outcome == Success
}

func Succeeded() WriteResult {
	return WriteResult{Outcome: Success}
}

func ThrottledResult(retryAfter time.Duration, err error) WriteResult {
	return WriteResult{Outcome: Throttled, RetryAfter: retryAfter, Err: err}
}

func TransientResult(err error) WriteResult {
	return WriteResult{Outcome: Transient, Err: err}
}

func FatalResult(err error) WriteResult {
	return WriteResult{Outcome: Fatal, Err: err}
}

// AlreadyStored is what CreateItem returns when the id is already taken.
// Ids are generated for a single write, so a conflict means an earlier
// attempt of this same write landed before its response was lost.
func AlreadyStored(id string, err error) WriteResult {
	logger.Debug("create found its own item already stored", "id", id, "reason", err)
	return Succeeded()
}

// Collection is one logical container of documents in a backing store.
// Implementations must be safe for concurrent use. CreateItem treats an id
// conflict as success (see AlreadyStored) and DeleteItem treats a missing
// item as success.
type Collection interface {
	Handle() CollectionHandle
	CreateItem(ctx context.Context, id string, item any, partitionKey string) WriteResult
	QueryItems(ctx context.Context, q Query) ([]json.RawMessage, error)
	DeleteItem(ctx context.Context, id string, partitionKey string) WriteResult
}

// Store groups the containers the sink writes to.
type Store struct {
	Reports     Collection
	DeadLetters Collection
}

// QueryAs runs q and decodes every returned document into T.
func QueryAs[T any](ctx context.Context, c Collection, q Query) ([]T, error) {
	docs, err := c.QueryItems(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var item T
		if err := json.Unmarshal(d, &item); err != nil {
			logger.Error("undecodable item in collection", "collection", c.Handle().Name, "error", err)
			return nil, fmt.Errorf("decoding %s item: %w", c.Handle().Name, err)
		}
		out = append(out, item)
	}
	return out, nil
}

// ToDocument turns an item into the generic document form the schemaless
// adapters store.
func ToDocument(item any) (map[string]any, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("item must encode as a JSON object: %w", err)
	}
	return doc, nil
}
