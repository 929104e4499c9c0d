package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ContactStore is the durable mapping from normalized email address to chat
// destination number, persisted as a single JSON object. Every mutation is a
// load-modify-rewrite of the whole file.
type ContactStore struct {
	path string
	mu   sync.Mutex
}

// NewContactStore creates a contact store backed by the given file
func NewContactStore(path string) *ContactStore {
	return &ContactStore{path: path}
}

// GetAll returns the full email to phone mapping
func (s *ContactStore) GetAll() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(), nil
}

// Upsert normalizes and stores a contact, persists the directory, and returns
// the resulting mapping
func (s *ContactStore) Upsert(email, phone string) (map[string]string, error) {
	key := normalizeEmail(email)
	number := normalizePhone(phone)

	if key == "" {
		return nil, fmt.Errorf("email is empty after normalization")
	}
	if number == "" {
		return nil, fmt.Errorf("phone contains no digits")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := s.load()
	contacts[key] = number

	if err := s.save(contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// Remove deletes a contact. It returns false when the key was absent, in
// which case nothing is persisted.
func (s *ContactStore) Remove(email string) (bool, error) {
	key := normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := s.load()
	if _, ok := contacts[key]; !ok {
		return false, nil
	}

	delete(contacts, key)
	if err := s.save(contacts); err != nil {
		return false, err
	}
	return true, nil
}

// Resolve looks up the destination number for an email address,
// case-insensitively
func (s *ContactStore) Resolve(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := s.load()
	number, ok := contacts[normalizeEmail(email)]
	return number, ok
}

// load reads the directory from disk. A missing or unreadable file yields an
// empty mapping.
func (s *ContactStore) load() map[string]string {
	contacts := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Errorf("Failed to read contacts file: %v", err)
		}
		return contacts
	}

	if err := json.Unmarshal(data, &contacts); err != nil {
		logrus.Errorf("Failed to parse contacts file: %v", err)
		return make(map[string]string)
	}
	return contacts
}

// save rewrites the whole directory file
func (s *ContactStore) save(contacts map[string]string) error {
	data, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode contacts: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write contacts file: %w", err)
	}
	return nil
}

// normalizeEmail lowercases and trims an email address
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone strips every non-digit character from a phone number
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
