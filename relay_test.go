package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promauto registers into the default registry, so tests share one instance
var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

func testMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = NewMetrics()
	})
	return sharedMetrics
}

// fakeFetcher serves a fixed set of messages
type fakeFetcher struct {
	emails     []EmailMessage
	fetchErrs  map[string]error
	listErr    error
	fetchCalls []string
	closed     bool
}

func (f *fakeFetcher) ListRecent(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.emails))
	for _, e := range f.emails {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) (EmailMessage, error) {
	f.fetchCalls = append(f.fetchCalls, id)
	if err := f.fetchErrs[id]; err != nil {
		return EmailMessage{}, err
	}
	for _, e := range f.emails {
		if e.ID == id {
			return e, nil
		}
	}
	return EmailMessage{}, fmt.Errorf("message %s not found", id)
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

// sentMessage records one fake dispatch
type sentMessage struct {
	Destination string
	Text        string
}

// fakeMessenger records dispatches and can fail selected destinations
type fakeMessenger struct {
	ready    bool
	failFor  map[string]error
	sent     []sentMessage
	infoName string
}

func (m *fakeMessenger) State() ChatState {
	if m.ready {
		return StateReady
	}
	return StateUnauthenticated
}

func (m *fakeMessenger) Ready() bool { return m.ready }

func (m *fakeMessenger) Info() (string, string, bool) {
	if !m.ready {
		return "", "", false
	}
	return m.infoName, "15550000000", true
}

func (m *fakeMessenger) SendText(ctx context.Context, destination, text string) error {
	if !m.ready {
		return ErrChatNotReady
	}
	if err := m.failFor[destination]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{Destination: destination, Text: text})
	return nil
}

func newTestRelay(t *testing.T, fetcher EmailFetcher, messenger Messenger) (*Relay, *ContactStore, *ProcessedStore) {
	t.Helper()
	dir := t.TempDir()
	contacts := NewContactStore(filepath.Join(dir, "contacts.json"))
	processed := NewProcessedStore(filepath.Join(dir, "processed_emails.json"))
	processed.Load()
	relay := NewRelay(fetcher, contacts, processed, messenger, nil, testMetrics())
	return relay, contacts, processed
}

func TestRelayScenarioInvoice(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-1", Subject: "Invoice", To: "client@firm.com", Body: "Please find the invoice attached."},
		},
	}
	messenger := &fakeMessenger{ready: true}
	relay, contacts, processed := newTestRelay(t, fetcher, messenger)

	_, err := contacts.Upsert("client@firm.com", "15551234567")
	require.NoError(t, err)

	relay.RunOnce(context.Background())

	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "15551234567", messenger.sent[0].Destination)
	assert.Contains(t, messenger.sent[0].Text, "Invoice")
	assert.True(t, processed.Contains("msg-1"))

	// A second pass over the same id must not dispatch again
	relay.RunOnce(context.Background())
	assert.Len(t, messenger.sent, 1)
}

func TestRelaySkipsProcessedIds(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "seen-1", Subject: "Old", To: "a@x.com", Body: "old"},
		},
	}
	messenger := &fakeMessenger{ready: true}
	relay, _, processed := newTestRelay(t, fetcher, messenger)

	processed.Add("seen-1")
	relay.RunOnce(context.Background())

	assert.Empty(t, fetcher.fetchCalls, "processed ids must not be fetched")
	assert.Empty(t, messenger.sent)
}

func TestRelayMultiRecipientFanOut(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-2", Subject: "Plans", To: "Alice <a@x.com>, b@y.com", Body: "see you then"},
		},
	}
	messenger := &fakeMessenger{ready: true}
	relay, contacts, processed := newTestRelay(t, fetcher, messenger)

	// Only one of the two recipients has a mapping
	_, err := contacts.Upsert("a@x.com", "15559876543")
	require.NoError(t, err)

	relay.RunOnce(context.Background())

	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "15559876543", messenger.sent[0].Destination)
	assert.True(t, processed.Contains("msg-2"))
}

func TestRelaySharedSummaryAcrossRecipients(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-3", Subject: "Update", To: "a@x.com, b@y.com", Body: "status report"},
		},
	}
	messenger := &fakeMessenger{ready: true}
	relay, contacts, _ := newTestRelay(t, fetcher, messenger)

	_, err := contacts.Upsert("a@x.com", "15550000001")
	require.NoError(t, err)
	_, err = contacts.Upsert("b@y.com", "15550000002")
	require.NoError(t, err)

	relay.RunOnce(context.Background())

	require.Len(t, messenger.sent, 2)
	assert.Equal(t, messenger.sent[0].Text, messenger.sent[1].Text,
		"the same summary fans out to all recipients")
}

func TestRelayDispatchFailureStillMarksProcessed(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-4", Subject: "Report", To: "a@x.com, b@y.com", Body: "numbers"},
		},
	}
	messenger := &fakeMessenger{
		ready:   true,
		failFor: map[string]error{"15550000001": fmt.Errorf("gateway timeout")},
	}
	relay, contacts, processed := newTestRelay(t, fetcher, messenger)

	_, err := contacts.Upsert("a@x.com", "15550000001")
	require.NoError(t, err)
	_, err = contacts.Upsert("b@y.com", "15550000002")
	require.NoError(t, err)

	relay.RunOnce(context.Background())

	// The failure for the first recipient does not stop the second
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "15550000002", messenger.sent[0].Destination)
	// And the message is still marked processed
	assert.True(t, processed.Contains("msg-4"))
}

func TestRelayNoRecipientsStillMarksProcessed(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-5", Subject: "Note to self", To: "", Body: "remember"},
		},
	}
	messenger := &fakeMessenger{ready: true}
	relay, _, processed := newTestRelay(t, fetcher, messenger)

	relay.RunOnce(context.Background())

	assert.Empty(t, messenger.sent)
	assert.True(t, processed.Contains("msg-5"))
}

func TestRelayFetchErrorLeavesIdUnprocessed(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-6", Subject: "Broken", To: "a@x.com", Body: ""},
		},
		fetchErrs: map[string]error{"msg-6": fmt.Errorf("transient provider error")},
	}
	messenger := &fakeMessenger{ready: true}
	relay, _, processed := newTestRelay(t, fetcher, messenger)

	relay.RunOnce(context.Background())

	assert.False(t, processed.Contains("msg-6"), "a fetch failure must leave the id retryable")
}

func TestRelayListErrorAbortsPass(t *testing.T) {
	fetcher := &fakeFetcher{listErr: fmt.Errorf("provider unavailable")}
	messenger := &fakeMessenger{ready: true}
	relay, _, _ := newTestRelay(t, fetcher, messenger)

	// Must not panic or dispatch anything
	relay.RunOnce(context.Background())
	assert.Empty(t, messenger.sent)
}

func TestRelayNilFetcherSkipsPass(t *testing.T) {
	messenger := &fakeMessenger{ready: true}
	relay, _, _ := newTestRelay(t, nil, messenger)

	relay.RunOnce(context.Background())
	assert.Empty(t, messenger.sent)
}

func TestRelaySetFetcherClosesPrevious(t *testing.T) {
	old := &fakeFetcher{}
	relay, _, _ := newTestRelay(t, old, &fakeMessenger{ready: true})

	relay.SetFetcher(&fakeFetcher{})
	assert.True(t, old.closed)
}

// blockingMessenger stalls the first dispatch until released, holding one
// pass open past its processed-set check
type blockingMessenger struct {
	mu      sync.Mutex
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	sent    []sentMessage
}

func newBlockingMessenger() *blockingMessenger {
	return &blockingMessenger{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (m *blockingMessenger) State() ChatState             { return StateReady }
func (m *blockingMessenger) Ready() bool                  { return true }
func (m *blockingMessenger) Info() (string, string, bool) { return "", "", false }

func (m *blockingMessenger) SendText(ctx context.Context, destination, text string) error {
	m.once.Do(func() {
		close(m.entered)
		<-m.release
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{Destination: destination, Text: text})
	return nil
}

func TestRelayConcurrentPassesDispatchOnce(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-8", Subject: "Contract", To: "client@firm.com", Body: "signed copy attached"},
		},
	}
	messenger := newBlockingMessenger()
	relay, contacts, processed := newTestRelay(t, fetcher, messenger)

	_, err := contacts.Upsert("client@firm.com", "15551234567")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)

	// First pass dispatches and stalls inside SendText, past its
	// processed-set check but before the id is marked
	go func() {
		defer wg.Done()
		relay.RunOnce(context.Background())
	}()
	<-messenger.entered

	// Second pass arrives while the first is still in flight
	go func() {
		defer wg.Done()
		relay.RunOnce(context.Background())
	}()

	close(messenger.release)
	wg.Wait()

	// The overlapping pass must not dispatch the same message again
	assert.Len(t, messenger.sent, 1)
	assert.True(t, processed.Contains("msg-8"))
}

func TestAddressExtraction(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  []string
	}{
		{"single bare address", "client@firm.com", []string{"client@firm.com"}},
		{"display name", "Alice <a@x.com>", []string{"a@x.com"}},
		{"multiple recipients", "Alice <a@x.com>, b@y.com", []string{"a@x.com", "b@y.com"}},
		{"plus addressing", "dev+test@example.co.uk", []string{"dev+test@example.co.uk"}},
		{"no addresses", "undisclosed recipients", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := addressPattern.FindAllString(tt.field, -1)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelayNotReadyMessenger(t *testing.T) {
	fetcher := &fakeFetcher{
		emails: []EmailMessage{
			{ID: "msg-7", Subject: "Hello", To: "a@x.com", Body: "hi"},
		},
	}
	messenger := &fakeMessenger{ready: false}
	relay, contacts, processed := newTestRelay(t, fetcher, messenger)

	_, err := contacts.Upsert("a@x.com", "15550000003")
	require.NoError(t, err)

	relay.RunOnce(context.Background())

	// Dispatch fails with ErrChatNotReady but the id is still marked
	assert.Empty(t, messenger.sent)
	assert.True(t, processed.Contains("msg-7"))
	assert.True(t, strings.Contains(ErrChatNotReady.Error(), "not ready"))
}
