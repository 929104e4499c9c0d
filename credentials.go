package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// CredentialStore is the durable record of Gmail API credentials, persisted as
// a single JSON document. When no record exists the configured fallback values
// are returned, so the service can boot from environment variables alone.
type CredentialStore struct {
	path     string
	fallback Credentials
	mu       sync.Mutex
}

// NewCredentialStore creates a credential store backed by the given file
func NewCredentialStore(path string, fallback Credentials) *CredentialStore {
	return &CredentialStore{path: path, fallback: fallback}
}

// Load returns the saved credentials, or the fallback values when the record
// is absent or unreadable
func (s *CredentialStore) Load() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("Failed to read credentials file: %v", err)
		}
		return s.fallback
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		logrus.Errorf("Failed to parse credentials file: %v", err)
		return s.fallback
	}
	return creds
}

// Save persists the credentials record, overwriting any prior content
func (s *CredentialStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Configured reports whether all three credential values are present
func (s *CredentialStore) Configured() bool {
	return s.Load().Configured()
}
