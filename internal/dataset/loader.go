package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound reports an unknown benchmark identifier.
var ErrNotFound = errors.New("dataset: benchmark not found")

// DirLoader loads datasets from JSON files in a directory, with built-in
// datasets as fallback. Loads are deterministic: the same id always yields
// the same ordered question sequence. A dataset failing validation is
// rejected wholesale.
type DirLoader struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Dataset
}

func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{
		dir:   strings.TrimSpace(dir),
		cache: make(map[string]*Dataset),
	}
}

func (l *DirLoader) Load(ctx context.Context, benchmarkID string) (*Dataset, error) {
	if l == nil {
		return nil, errors.New("dataset: nil loader")
	}
	if ctx == nil {
		return nil, errors.New("dataset: nil context")
	}
	id := strings.TrimSpace(benchmarkID)
	if id == "" {
		return nil, ErrNotFound
	}

	l.mu.Lock()
	if d, ok := l.cache[id]; ok {
		l.mu.Unlock()
		return d, nil
	}
	l.mu.Unlock()

	d, err := l.read(id)
	if err != nil {
		return nil, err
	}
	if err := Validate(d); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[id] = d
	l.mu.Unlock()
	return d, nil
}

func (l *DirLoader) read(id string) (*Dataset, error) {
	if l.dir != "" {
		path := filepath.Join(l.dir, id+".json")
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			var d Dataset
			if err := json.Unmarshal(b, &d); err != nil {
				return nil, fmt.Errorf("dataset: parse %q: %w", path, err)
			}
			if strings.TrimSpace(d.ID) == "" {
				d.ID = id
			}
			if d.ID != id {
				return nil, fmt.Errorf("dataset: %q declares id %q", path, d.ID)
			}
			return &d, nil
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("dataset: read %q: %w", path, err)
		}
	}

	if d, ok := builtins[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
}

// List returns the catalog: built-ins plus any dataset file in the directory,
// sorted by id. Files that fail to parse or validate are skipped.
func (l *DirLoader) List(ctx context.Context) ([]Info, error) {
	if l == nil {
		return nil, errors.New("dataset: nil loader")
	}
	if ctx == nil {
		return nil, errors.New("dataset: nil context")
	}

	seen := make(map[string]struct{}, len(builtins))
	out := make([]Info, 0, len(builtins))
	for id, d := range builtins {
		seen[id] = struct{}{}
		out = append(out, d.info())
	}

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("dataset: list %q: %w", l.dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
				continue
			}
			id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			if _, ok := seen[id]; ok {
				continue
			}
			d, err := l.Load(ctx, id)
			if err != nil {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, d.info())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Validate rejects a dataset when any question is malformed. Fail-fast: the
// whole dataset is refused, never a partial load.
func Validate(d *Dataset) error {
	if d == nil {
		return errors.New("dataset: nil dataset")
	}
	if strings.TrimSpace(d.ID) == "" {
		return errors.New("dataset: empty id")
	}
	if len(d.Questions) == 0 {
		return fmt.Errorf("dataset %s: no questions", d.ID)
	}

	ids := make(map[string]struct{}, len(d.Questions))
	for i, q := range d.Questions {
		qid := strings.TrimSpace(q.ID)
		if qid == "" {
			return fmt.Errorf("dataset %s: question %d: empty id", d.ID, i)
		}
		if _, dup := ids[qid]; dup {
			return fmt.Errorf("dataset %s: duplicate question id %q", d.ID, qid)
		}
		ids[qid] = struct{}{}

		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("dataset %s: question %q: empty prompt", d.ID, qid)
		}
		if strings.TrimSpace(q.Answer) == "" {
			return fmt.Errorf("dataset %s: question %q: empty canonical answer", d.ID, qid)
		}
		if len(q.Options) == 1 {
			return fmt.Errorf("dataset %s: question %q: single option", d.ID, qid)
		}
	}

	if len(d.Categories) == 0 {
		d.Categories = categoriesOf(d.Questions)
	}
	return nil
}

func categoriesOf(qs []Question) []string {
	set := make(map[string]struct{})
	for _, q := range qs {
		c := strings.TrimSpace(q.Category)
		if c != "" {
			set[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
