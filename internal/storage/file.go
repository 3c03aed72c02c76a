package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// FileStore keeps subscriptions in a single JSON document:
//
//	{"12345678": ["cosmos", "osmosis"]}
//
// Every save rewrites the whole file through a temp file and rename.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore prepares a file store; the file is created on first save.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the mapping; a missing file is an empty mapping.
func (s *FileStore) Load(ctx context.Context) (Subscriptions, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Subscriptions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Subscriptions{}, nil
	}

	var doc map[string][]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}

	subs := make(Subscriptions, len(doc))
	for key, networks := range doc {
		id, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode subscriptions: recipient %q: %w", key, err)
		}
		subs[id] = append(subs[id], networks...)
	}
	return subs.Normalize(), nil
}

// Save writes the full mapping.
func (s *FileStore) Save(ctx context.Context, subs Subscriptions) error {
	_ = ctx
	normalized := subs.Normalize()
	doc := make(map[string][]string, len(normalized))
	for id, networks := range normalized {
		doc[strconv.FormatInt(id, 10)] = networks
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscriptions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write subscriptions: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace subscriptions: %w", err)
	}
	return nil
}

// Close implements SubscriptionStore.
func (s *FileStore) Close() error { return nil }

// MemoryStore keeps the last saved mapping in memory.
type MemoryStore struct {
	mu   sync.Mutex
	subs Subscriptions
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: Subscriptions{}}
}

// Load returns a copy of the last saved mapping.
func (s *MemoryStore) Load(ctx context.Context) (Subscriptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.Normalize(), nil
}

// Save replaces the mapping.
func (s *MemoryStore) Save(ctx context.Context, subs Subscriptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = subs.Normalize()
	return nil
}

// Close implements SubscriptionStore.
func (s *MemoryStore) Close() error { return nil }

var (
	_ SubscriptionStore = (*FileStore)(nil)
	_ SubscriptionStore = (*MemoryStore)(nil)
)
