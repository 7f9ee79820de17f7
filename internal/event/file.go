package event

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
)

const DefaultPollInterval = time.Second

// DirListener delivers every *.json file dropped in Dir as a message. Acked
// files are removed; nacked files are picked up again on a later poll.
type DirListener struct {
	Dir          string
	PollInterval time.Duration
	Tracker      DeliveryTracker

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewDirListener(dir string, tracker DeliveryTracker) *DirListener {
	if tracker == nil {
		tracker = NewMemoryTracker()
	}
	return &DirListener{Dir: dir, Tracker: tracker, PollInterval: DefaultPollInterval}
}

func (dl *DirListener) Listen(ctx context.Context, handle Handler) error {
	if err := os.MkdirAll(dl.Dir, 0750); err != nil && !os.IsExist(err) {
		return err
	}
	interval := dl.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		if err := dl.poll(ctx, handle); err != nil {
			logger.Error("failed to poll inbox folder", "dir", dl.Dir, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (dl *DirListener) poll(ctx context.Context, handle Handler) error {
	names, err := dl.pending()
	if err != nil {
		return err
	}
	for _, name := range names {
		if ctx.Err() != nil {
			return nil
		}
		if !dl.claim(name) {
			continue
		}
		path := filepath.Join(dl.Dir, name)
		body, err := os.ReadFile(path)
		if err != nil {
			dl.release(name)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		count, err := dl.Tracker.Attempt(ctx, name)
		if err != nil {
			dl.release(name)
			return err
		}
		handle(ctx, NewEnvelope(body, models.SourceLocal, name, count,
			func(ctx context.Context) error {
				defer dl.release(name)
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				return dl.Tracker.Forget(ctx, name)
			},
			func(context.Context) error {
				dl.release(name)
				return nil
			},
		))
	}
	return nil
}

func (dl *DirListener) pending() ([]string, error) {
	entries, err := os.ReadDir(dl.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (dl *DirListener) claim(name string) bool {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.inFlight == nil {
		dl.inFlight = map[string]bool{}
	}
	if dl.inFlight[name] {
		return false
	}
	dl.inFlight[name] = true
	return true
}

func (dl *DirListener) release(name string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()
	delete(dl.inFlight, name)
}

func (dl *DirListener) Length(_ context.Context) (float64, error) {
	names, err := dl.pending()
	return float64(len(names)), err
}

func (dl *DirListener) Close() error {
	return nil
}

func (dl *DirListener) Health(_ context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp("Local inbox folder")
	if _, err := os.Stat(dl.Dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}
