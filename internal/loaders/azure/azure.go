package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
)

var (
	errStorageNameEmpty     = errors.New("schema storage account name is empty")
	errStorageKeyEmpty      = errors.New("schema storage account key is empty")
	errStorageEndpointEmpty = errors.New("schema storage endpoint is empty")
)

type BlobSchemaLoader struct {
	Client        *azblob.Client
	ContainerName string
}

// NewBlobClient returns a shared key blob client for the schema storage
// account.
func NewBlobClient(accountName, accountKey, endpoint string) (*azblob.Client, error) {
	if len(strings.TrimSpace(accountName)) == 0 {
		return nil, errStorageNameEmpty
	}
	if len(strings.TrimSpace(accountKey)) == 0 {
		return nil, errStorageKeyEmpty
	}
	if len(strings.TrimSpace(endpoint)) == 0 {
		return nil, errStorageEndpointEmpty
	}

	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("schema storage credential: %w", err)
	}
	return azblob.NewClientWithSharedKeyCredential(endpoint, cred, nil)
}

func (l *BlobSchemaLoader) LoadSchema(ctx context.Context, name string) ([]byte, error) {
	resp, err := l.Client.DownloadStream(ctx, l.ContainerName, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, errors.Join(err, validation.ErrNotFound)
		}
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (l *BlobSchemaLoader) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.SCHEMA_STORAGE)
	if l.Client == nil {
		return rsp.BuildErrorResponse(errors.New("schema blob client not available"))
	}
	_, err := l.Client.ServiceClient().NewContainerClient(l.ContainerName).GetProperties(ctx, nil)
	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) {
		return rsp.BuildErrorResponse(fmt.Errorf("schema container %s: %s", l.ContainerName, responseErr.ErrorCode))
	}
	if err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}
