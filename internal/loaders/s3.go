package loaders

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
)

type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type S3SchemaLoader struct {
	Client     S3Client
	BucketName string
	Folder     string
}

func (l *S3SchemaLoader) LoadSchema(ctx context.Context, name string) ([]byte, error) {
	key := name
	if l.Folder != "" {
		key = l.Folder + "/" + key
	}
	output, err := l.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &l.BucketName,
		Key:    &key,
	})
	if err != nil {
		var notExist *types.NoSuchKey
		if errors.As(err, &notExist) {
			return nil, errors.Join(err, validation.ErrNotFound)
		}
		return nil, err
	}
	defer output.Body.Close()

	return io.ReadAll(output.Body)
}

func (l *S3SchemaLoader) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.SCHEMA_STORAGE)
	if _, err := l.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &l.BucketName}); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}
