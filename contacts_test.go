package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContacts(t *testing.T) *ContactStore {
	t.Helper()
	return NewContactStore(filepath.Join(t.TempDir(), "contacts.json"))
}

func TestContactRoundTrip(t *testing.T) {
	store := newTestContacts(t)

	_, err := store.Upsert("client@firm.com", "15551234567")
	require.NoError(t, err)

	number, ok := store.Resolve("client@firm.com")
	assert.True(t, ok)
	assert.Equal(t, "15551234567", number)

	removed, err := store.Remove("client@firm.com")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok = store.Resolve("client@firm.com")
	assert.False(t, ok)
}

func TestContactNormalization(t *testing.T) {
	store := newTestContacts(t)

	_, err := store.Upsert("Foo@Bar.com ", "(555) 123-4567")
	require.NoError(t, err)

	contacts, err := store.GetAll()
	require.NoError(t, err)
	assert.Equal(t, "5551234567", contacts["foo@bar.com"])
}

func TestContactResolveCaseInsensitive(t *testing.T) {
	store := newTestContacts(t)

	_, err := store.Upsert("someone@example.com", "12025550123")
	require.NoError(t, err)

	number, ok := store.Resolve("SomeOne@Example.COM")
	assert.True(t, ok)
	assert.Equal(t, "12025550123", number)
}

func TestContactRemoveAbsent(t *testing.T) {
	store := newTestContacts(t)

	removed, err := store.Remove("nobody@example.com")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestContactUpsertRejectsEmptyValues(t *testing.T) {
	store := newTestContacts(t)

	_, err := store.Upsert("   ", "15551234567")
	assert.Error(t, err)

	_, err = store.Upsert("a@b.com", "no digits here")
	assert.Error(t, err)
}

func TestContactPersistenceAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")

	first := NewContactStore(path)
	_, err := first.Upsert("a@b.com", "111-222-3333")
	require.NoError(t, err)

	second := NewContactStore(path)
	number, ok := second.Resolve("a@b.com")
	assert.True(t, ok)
	assert.Equal(t, "1112223333", number)
}

func TestContactCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store := NewContactStore(path)
	contacts, err := store.GetAll()
	require.NoError(t, err)
	assert.Empty(t, contacts)
}
