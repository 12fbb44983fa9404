// Package cache persists landmark fingerprints as one JSON document per
// track so library fingerprints survive across runs. Snippet fingerprints
// never pass through here.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acousticlab/samplescan/internal/fingerprint"
)

// Store is a directory of <stem>.json fingerprint files. Entries never
// expire; a source file changing after fingerprinting goes unnoticed, and a
// format change requires clearing the directory.
type Store struct {
	dir  string
	mu   sync.Mutex
	keys map[string]*sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir %s: %w", dir, err)
	}
	return &Store{dir: dir, keys: make(map[string]*sync.Mutex)}, nil
}

// Key derives the cache key for a track path: its extension-stripped stem.
func Key(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// keyLock hands out one mutex per key so concurrent misses for the same
// track serialize instead of racing check-then-build-then-write.
func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.keys[key]
	if !ok {
		l = &sync.Mutex{}
		s.keys[key] = l
	}
	return l
}

// LoadOrBuild returns the cached fingerprint for key, building and
// persisting it via build on a miss. The build closure runs at most once
// per key even under concurrent callers. An unreadable or corrupt cache
// file is an error, not a silent rebuild: rebuilding would mask format
// drift.
func (s *Store) LoadOrBuild(key string, build func() ([]fingerprint.HashEntry, error)) ([]fingerprint.HashEntry, error) {
	l := s.keyLock(key)
	l.Lock()
	defer l.Unlock()

	path := filepath.Join(s.dir, key+".json")
	if data, err := os.ReadFile(path); err == nil {
		var entries []fingerprint.HashEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("corrupt fingerprint cache %s: %w", path, err)
		}
		return entries, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading fingerprint cache %s: %w", path, err)
	}

	entries, err := build()
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding fingerprint for %s: %w", key, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing fingerprint cache %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	return entries, nil
}
