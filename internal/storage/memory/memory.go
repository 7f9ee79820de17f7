package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
)

var ErrConflict = errors.New("item with this id already exists")

type item struct {
	seq int
	doc json.RawMessage
}

// Collection keeps documents in process memory, grouped by partition key.
type Collection struct {
	name string

	mu    sync.RWMutex
	seq   int
	items map[string]map[string]item
}

func New(name string) *Collection {
	return &Collection{
		name:  name,
		items: map[string]map[string]item{},
	}
}

// NewStore returns a store backed by two memory collections.
func NewStore(reports, deadLetters string) storage.Store {
	return storage.Store{
		Reports:     New(reports),
		DeadLetters: New(deadLetters),
	}
}

func (c *Collection) Handle() storage.CollectionHandle {
	return storage.DocumentHandle(c.name)
}

func (c *Collection) CreateItem(_ context.Context, id string, v any, partitionKey string) storage.WriteResult {
	b, err := json.Marshal(v)
	if err != nil {
		return storage.FatalResult(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	partition, ok := c.items[partitionKey]
	if !ok {
		partition = map[string]item{}
		c.items[partitionKey] = partition
	}
	if _, exists := partition[id]; exists {
		return storage.AlreadyStored(id, fmt.Errorf("%s/%s: %w", partitionKey, id, ErrConflict))
	}
	c.seq++
	partition[id] = item{seq: c.seq, doc: b}
	return storage.Succeeded()
}

func (c *Collection) QueryItems(_ context.Context, q storage.Query) ([]json.RawMessage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []item
	for pk, partition := range c.items {
		if q.PartitionKey != "" && pk != q.PartitionKey {
			continue
		}
		for _, it := range partition {
			var doc map[string]any
			if err := json.Unmarshal(it.doc, &doc); err != nil {
				return nil, err
			}
			if storage.Matches(doc, q) {
				matched = append(matched, it)
			}
		}
	}

	// insertion order keeps results stable between calls
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]json.RawMessage, len(matched))
	for i, it := range matched {
		out[i] = append(json.RawMessage(nil), it.doc...)
	}
	return out, nil
}

// DeleteItem treats a missing item as already deleted.
func (c *Collection) DeleteItem(_ context.Context, id string, partitionKey string) storage.WriteResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if partition, ok := c.items[partitionKey]; ok {
		delete(partition, id)
	}
	return storage.Succeeded()
}

// Len returns the number of documents held across all partitions.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, p := range c.items {
		n += len(p)
	}
	return n
}

func (c *Collection) Health(_ context.Context) models.ServiceHealthResp {
	return models.HealthyResp(fmt.Sprintf("Memory %s collection", c.name))
}
