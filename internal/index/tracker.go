package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Tracker remembers the content hash of every chunked file so unchanged
// files can be skipped on the next run.
type Tracker struct {
	mu    sync.RWMutex
	repos map[string]*repoTracker // repo name -> tracker
}

type repoTracker struct {
	Hashes    map[string]string    `json:"hashes"`     // path -> content hash
	IndexedAt map[string]time.Time `json:"indexed_at"` // path -> chunked time
}

// NewTracker creates a new tracker.
func NewTracker() *Tracker {
	return &Tracker{
		repos: make(map[string]*repoTracker),
	}
}

func (t *Tracker) repoLocked(repo string) *repoTracker {
	if rt, ok := t.repos[repo]; ok {
		return rt
	}
	rt := &repoTracker{
		Hashes:    make(map[string]string),
		IndexedAt: make(map[string]time.Time),
	}
	t.repos[repo] = rt
	return rt
}

// HasHash reports whether path was last chunked with this content hash.
func (t *Tracker) HasHash(repo, path, hash string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rt, ok := t.repos[repo]
	if !ok {
		return false
	}

	existing, ok := rt.Hashes[path]
	return ok && existing == hash
}

// SetHash records a file hash.
func (t *Tracker) SetHash(repo, path, hash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rt := t.repoLocked(repo)
	rt.Hashes[path] = hash
	rt.IndexedAt[path] = time.Now()
}

// RemovePath removes a path from tracking.
func (t *Tracker) RemovePath(repo, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rt, ok := t.repos[repo]
	if !ok {
		return
	}

	delete(rt.Hashes, path)
	delete(rt.IndexedAt, path)
}

// GetPaths returns all tracked paths for a repo, sorted.
func (t *Tracker) GetPaths(repo string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rt, ok := t.repos[repo]
	if !ok {
		return nil
	}

	paths := make([]string, 0, len(rt.Hashes))
	for path := range rt.Hashes {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Removed returns tracked paths that are no longer present, sorted.
func (t *Tracker) Removed(repo string, currentPaths []string) []string {
	current := make(map[string]struct{}, len(currentPaths))
	for _, path := range currentPaths {
		current[path] = struct{}{}
	}

	var removed []string
	for _, path := range t.GetPaths(repo) {
		if _, exists := current[path]; !exists {
			removed = append(removed, path)
		}
	}
	return removed
}

// Save persists the tracker to dir, one JSON file per repo.
func (t *Tracker) Save(dir string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	for repo, rt := range t.repos {
		data, err := json.MarshalIndent(rt, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, repo+".json"), data, 0644); err != nil {
			return err
		}
	}

	return nil
}

// Load restores the tracker from dir. A missing dir is not an error.
func (t *Tracker) Load(dir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		var rt repoTracker
		if err := json.Unmarshal(data, &rt); err != nil {
			return err
		}

		if rt.Hashes == nil {
			rt.Hashes = make(map[string]string)
		}
		if rt.IndexedAt == nil {
			rt.IndexedAt = make(map[string]time.Time)
		}

		t.repos[strings.TrimSuffix(entry.Name(), ".json")] = &rt
	}

	return nil
}
