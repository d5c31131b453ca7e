package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"curator/internal/logging"
	"curator/internal/types"
)

// FeedDir reads candidate dumps from a directory of JSON files. Each
// file is either a bare array of candidates or an envelope:
//
//	{"source": "reddit", "items": [...]}
//
// where the envelope's source fills in any item that omits its own.
type FeedDir struct {
	dir string
}

// NewFeedDir returns a Source over dir.
func NewFeedDir(dir string) *FeedDir {
	return &FeedDir{dir: dir}
}

// Name implements Source.
func (f *FeedDir) Name() string { return "feed-dir:" + f.dir }

type feedEnvelope struct {
	Source types.Source `json:"source"`
	Items  []Candidate  `json:"items"`
}

// Fetch reads every *.json file in the directory, in name order so runs
// are deterministic. A malformed file fails only itself; the remaining
// feeds still load.
func (f *FeedDir) Fetch(ctx context.Context) ([]Candidate, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Ingest("feed directory %s does not exist, nothing to ingest", f.dir)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read feed directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []Candidate
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(f.dir, name)
		candidates, err := readFeedFile(path)
		if err != nil {
			logging.Get(logging.CategoryIngest).Warn("skipping feed %s: %v", name, err)
			continue
		}
		logging.IngestDebug("feed %s supplied %d candidates", name, len(candidates))
		all = append(all, candidates...)
	}

	logging.Ingest("read %d candidates from %d feed files", len(all), len(names))
	return all, nil
}

func readFeedFile(path string) ([]Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []Candidate
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("malformed candidate array: %w", err)
		}
		return items, nil
	}

	var env feedEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed feed envelope: %w", err)
	}
	for i := range env.Items {
		if env.Items[i].Source == "" {
			env.Items[i].Source = env.Source
		}
	}
	return env.Items, nil
}
