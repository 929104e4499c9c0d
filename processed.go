package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// ProcessedStore is the durable set of message ids already relayed. The set
// lives in memory and is flushed to a JSON array file on a fixed interval and
// at shutdown. Flush rewrites the whole file, so a crash can only lose
// unflushed additions.
type ProcessedStore struct {
	path  string
	mu    sync.Mutex
	ids   map[string]struct{}
	dirty bool
}

// NewProcessedStore creates a processed-set store backed by the given file
func NewProcessedStore(path string) *ProcessedStore {
	return &ProcessedStore{
		path: path,
		ids:  make(map[string]struct{}),
	}
}

// Load reads the persisted set. A missing or unreadable file leaves the set
// empty; that risks re-processing but is never fatal.
func (s *ProcessedStore) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("Failed to read processed emails file: %v", err)
		}
		return
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		logrus.Errorf("Failed to parse processed emails file: %v", err)
		return
	}

	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	logrus.Infof("Loaded %d previously processed emails", len(s.ids))
}

// Contains reports whether a message id has already been relayed
func (s *ProcessedStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records a message id as processed. Ids are never removed.
func (s *ProcessedStore) Add(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.dirty = true
}

// Count returns the number of processed ids
func (s *ProcessedStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Flush persists the current set, overwriting prior content. It is a no-op
// when nothing changed since the last successful flush. On error the ids stay
// in memory until the next flush.
func (s *ProcessedStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode processed emails: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write processed emails file: %w", err)
	}

	s.dirty = false
	return nil
}
