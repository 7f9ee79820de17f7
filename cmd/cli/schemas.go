package cli

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/appconfig"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/health"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/loaders"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/loaders/azure"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/loaders/file"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/schemas"
)

// NewSchemaLoader picks where report schemas are read from. The schemas
// compiled into the binary are used when nothing else is configured.
func NewSchemaLoader(ctx context.Context, appConfig appconfig.AppConfig) (validation.SchemaLoader, error) {
	if appConfig.S3SchemaConnection != nil {
		conf := appConfig.S3SchemaConnection
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if conf.Endpoint != "" {
				o.BaseEndpoint = aws.String(conf.Endpoint)
				o.UsePathStyle = true
			}
		})
		l := &loaders.S3SchemaLoader{
			Client:     client,
			BucketName: conf.BucketName,
			Folder:     conf.Folder,
		}
		health.Register(l)
		return l, nil
	}

	if appConfig.AzureSchemaConnection != nil {
		conf := appConfig.AzureSchemaConnection
		client, err := azure.NewBlobClient(conf.StorageName, conf.StorageKey, conf.ContainerEndpoint)
		if err != nil {
			return nil, err
		}
		l := &azure.BlobSchemaLoader{
			Client:        client,
			ContainerName: conf.ContainerName,
		}
		health.Register(l)
		return l, nil
	}

	if appConfig.SchemaDir != "" {
		logger.Info("loading schemas from folder", "path", appConfig.SchemaDir)
		return &file.SchemaLoader{FileSystem: os.DirFS(appConfig.SchemaDir)}, nil
	}

	return &file.SchemaLoader{FileSystem: schemas.FS}, nil
}
