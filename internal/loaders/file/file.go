package file

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/validation"
)

type SchemaLoader struct {
	FileSystem fs.FS
}

func (l *SchemaLoader) LoadSchema(_ context.Context, name string) ([]byte, error) {
	file, err := l.FileSystem.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(err, validation.ErrNotFound)
		}
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func (l *SchemaLoader) Health(_ context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.SCHEMA_STORAGE)
	if _, err := fs.Stat(l.FileSystem, "."); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}
