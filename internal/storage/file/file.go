package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/storage"
)

const noPartition = "_"

// Collection writes one JSON file per document under Dir/<name>/<partition>/.
// It backs the local run mode.
type Collection struct {
	Dir  string
	Name string
}

func NewStore(dir, reports, deadLetters string) storage.Store {
	return storage.Store{
		Reports:     &Collection{Dir: dir, Name: reports},
		DeadLetters: &Collection{Dir: dir, Name: deadLetters},
	}
}

func (c *Collection) Handle() storage.CollectionHandle {
	return storage.DocumentHandle(c.Name)
}

func (c *Collection) root() string {
	return filepath.Join(c.Dir, c.Name)
}

func (c *Collection) path(id, partitionKey string) string {
	return filepath.Join(c.root(), safeName(partitionKey), safeName(id)+".json")
}

func (c *Collection) CreateItem(_ context.Context, id string, item any, partitionKey string) storage.WriteResult {
	b, err := json.Marshal(item)
	if err != nil {
		return storage.FatalResult(err)
	}
	target := c.path(id, partitionKey)
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil && !os.IsExist(err) {
		return storage.TransientResult(err)
	}
	if _, err := os.Stat(target); err == nil {
		return storage.AlreadyStored(id, fmt.Errorf("%s already exists", target))
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return storage.TransientResult(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return storage.TransientResult(err)
	}
	if err := tmp.Close(); err != nil {
		return storage.TransientResult(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return storage.TransientResult(err)
	}
	return storage.Succeeded()
}

func (c *Collection) QueryItems(_ context.Context, q storage.Query) ([]json.RawMessage, error) {
	root := c.root()
	if q.PartitionKey != "" {
		root = filepath.Join(root, safeName(q.PartitionKey))
	}

	type found struct {
		doc     json.RawMessage
		modTime int64
		path    string
	}
	var matched []found
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if storage.Matches(doc, q) {
			info, err := d.Info()
			if err != nil {
				return err
			}
			matched = append(matched, found{doc: b, modTime: info.ModTime().UnixNano(), path: path})
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].modTime == matched[j].modTime {
			return matched[i].path < matched[j].path
		}
		return matched[i].modTime < matched[j].modTime
	})
	out := make([]json.RawMessage, len(matched))
	for i, m := range matched {
		out[i] = m.doc
	}
	return out, nil
}

func (c *Collection) DeleteItem(_ context.Context, id string, partitionKey string) storage.WriteResult {
	err := os.Remove(c.path(id, partitionKey))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storage.TransientResult(err)
	}
	return storage.Succeeded()
}

func (c *Collection) Health(_ context.Context) (rsp models.ServiceHealthResp) {
	rsp = models.HealthyResp("Local " + c.Name + " folder")
	if err := os.MkdirAll(c.root(), 0750); err != nil && !os.IsExist(err) {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

func safeName(s string) string {
	if s == "" {
		return noPartition
	}
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(s)
}
