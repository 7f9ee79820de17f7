package loaders

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
)

type fakeS3 struct {
	objects map[string]string
	keys    []string
	headErr error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3SchemaLoader(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"schemas/base.1.0.0.schema.json": `{"type":"object"}`}}
	l := &S3SchemaLoader{Client: client, BucketName: "bucket", Folder: "schemas"}

	b, err := l.LoadSchema(context.Background(), "base.1.0.0.schema.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"object"}` {
		t.Fatalf("unexpected schema %s", b)
	}

	_, err = l.LoadSchema(context.Background(), "missing.schema.json")
	if !errors.Is(err, validation.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if client.keys[1] != "schemas/missing.schema.json" {
		t.Fatalf("folder not applied to key %s", client.keys[1])
	}

	if rsp := l.Health(context.Background()); rsp.Status != models.STATUS_UP {
		t.Fatalf("expected healthy, got %+v", rsp)
	}
	client.headErr = errors.New("forbidden")
	if rsp := l.Health(context.Background()); rsp.Status != models.STATUS_DOWN {
		t.Fatalf("expected down, got %+v", rsp)
	}
}
