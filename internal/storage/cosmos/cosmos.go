package cosmos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
)

const retryAfterHeader = "x-ms-retry-after-ms"

// NewClient authenticates with the account key when one is configured and
// with the default Azure credential chain otherwise.
func NewClient(conf appconfig.CosmosConfig) (*azcosmos.Client, error) {
	if conf.Key != "" {
		cred, err := azcosmos.NewKeyCredential(conf.Key)
		if err != nil {
			return nil, err
		}
		return azcosmos.NewClientWithKey(conf.Endpoint, cred, nil)
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azcosmos.NewClient(conf.Endpoint, cred, nil)
}

func NewStore(client *azcosmos.Client, database, reports, deadLetters string) (storage.Store, error) {
	r, err := NewCollection(client, database, reports)
	if err != nil {
		return storage.Store{}, err
	}
	dl, err := NewCollection(client, database, deadLetters)
	if err != nil {
		return storage.Store{}, err
	}
	return storage.Store{Reports: r, DeadLetters: dl}, nil
}

// Collection is one Cosmos DB container partitioned by /uploadId.
type Collection struct {
	Container *azcosmos.ContainerClient
	handle    storage.CollectionHandle
}

func NewCollection(client *azcosmos.Client, database, container string) (*Collection, error) {
	c, err := client.NewContainer(database, container)
	if err != nil {
		return nil, fmt.Errorf("cosmos container %s/%s: %w", database, container, err)
	}
	return &Collection{Container: c, handle: storage.CosmosHandle(container)}, nil
}

func (c *Collection) Handle() storage.CollectionHandle {
	return c.handle
}

func (c *Collection) CreateItem(ctx context.Context, id string, item any, partitionKey string) storage.WriteResult {
	b, err := json.Marshal(item)
	if err != nil {
		return storage.FatalResult(err)
	}
	_, err = c.Container.CreateItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), b, nil)
	return created(id, err)
}

func (c *Collection) DeleteItem(ctx context.Context, id string, partitionKey string) storage.WriteResult {
	_, err := c.Container.DeleteItem(ctx, azcosmos.NewPartitionKeyString(partitionKey), id, nil)
	return classify(err, true)
}

func (c *Collection) QueryItems(ctx context.Context, q storage.Query) ([]json.RawMessage, error) {
	if q.PartitionKey == "" {
		return nil, errors.New("cosmos queries must be scoped to a partition")
	}
	text, args := c.handle.Render(q)
	params := make([]azcosmos.QueryParameter, len(args))
	for i, a := range args {
		params[i] = azcosmos.QueryParameter{Name: "@p" + strconv.Itoa(i+1), Value: a}
	}

	pager := c.Container.NewQueryItemsPager(text, azcosmos.NewPartitionKeyString(q.PartitionKey), &azcosmos.QueryOptions{
		QueryParameters: params,
	})
	var out []json.RawMessage
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", c.handle.Name, err)
		}
		for _, item := range page.Items {
			out = append(out, json.RawMessage(item))
		}
	}
	return out, nil
}

func (c *Collection) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.COSMOS_DB + " " + c.handle.Name)
	if _, err := c.Container.Read(ctx, nil); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

// classify maps a Cosmos DB error to a write outcome. A 429 carries how long
// the service wants us to wait.
func classify(err error, isDelete bool) storage.WriteResult {
	if err == nil {
		return storage.Succeeded()
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		// no response at all, usually a network failure
		return storage.TransientResult(err)
	}
	switch respErr.StatusCode {
	case http.StatusTooManyRequests:
		return storage.ThrottledResult(retryAfter(respErr), err)
	case http.StatusNotFound:
		if isDelete {
			return storage.Succeeded()
		}
		return storage.FatalResult(err)
	case http.StatusConflict, http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestEntityTooLarge:
		return storage.FatalResult(err)
	case http.StatusRequestTimeout, 449:
		return storage.TransientResult(err)
	}
	if respErr.StatusCode >= http.StatusInternalServerError {
		return storage.TransientResult(err)
	}
	return storage.FatalResult(err)
}

func created(id string, err error) storage.WriteResult {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusConflict {
		return storage.AlreadyStored(id, err)
	}
	return classify(err, false)
}

func retryAfter(respErr *azcore.ResponseError) time.Duration {
	if respErr.RawResponse == nil {
		return 0
	}
	ms, err := strconv.ParseFloat(respErr.RawResponse.Header.Get(retryAfterHeader), 64)
	if err != nil || ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
