package main

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// addressPattern matches address-like tokens in a raw recipient header;
// display names and separators fall out naturally
var addressPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)

// Relay turns newly observed sent emails into chat notifications. For each
// message not yet in the processed set it resolves every recipient through the
// contact directory, dispatches one shared summary per resolved recipient, and
// marks the message processed after all recipients were attempted, regardless
// of individual delivery outcome. A message is therefore never retried once
// observed - at most once per message id.
type Relay struct {
	// passMu serializes poll passes: an id must be checked against the
	// processed set and marked by at most one pass, or an overlapping pass
	// could dispatch the same message twice
	passMu sync.Mutex

	mu        sync.RWMutex
	fetcher   EmailFetcher
	contacts  *ContactStore
	processed *ProcessedStore
	messenger Messenger
	logs      *RelayLogStore
	metrics   *Metrics
}

// NewRelay creates the relay pipeline. fetcher may be nil until credentials
// are configured; logs may be nil when the relay-log database is disabled.
func NewRelay(fetcher EmailFetcher, contacts *ContactStore, processed *ProcessedStore, messenger Messenger, logs *RelayLogStore, metrics *Metrics) *Relay {
	return &Relay{
		fetcher:   fetcher,
		contacts:  contacts,
		processed: processed,
		messenger: messenger,
		logs:      logs,
		metrics:   metrics,
	}
}

// SetFetcher swaps the active mail fetcher, used when credentials are updated
// through the control surface
func (r *Relay) SetFetcher(fetcher EmailFetcher) {
	r.mu.Lock()
	old := r.fetcher
	r.fetcher = fetcher
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logrus.Errorf("Failed to close previous fetcher: %v", err)
		}
	}
}

func (r *Relay) currentFetcher() EmailFetcher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetcher
}

// RunOnce performs one poll pass: list recent sent messages, fetch the ones
// not yet processed, and relay each. Provider errors abort the pass; the next
// tick retries. Passes are serialized, so a scheduled tick or a manual
// trigger arriving while a slow pass is still running waits its turn and then
// sees every id the previous pass marked.
func (r *Relay) RunOnce(ctx context.Context) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	fetcher := r.currentFetcher()
	if fetcher == nil {
		logrus.Debug("Mail fetcher not configured, skipping poll pass")
		return
	}

	start := time.Now()
	r.metrics.PollCount.Inc()

	ids, err := fetcher.ListRecent(ctx)
	if err != nil {
		logrus.Errorf("Failed to list sent messages: %v", err)
		return
	}

	relayed := 0
	for _, id := range ids {
		if r.processed.Contains(id) {
			continue
		}

		email, err := fetcher.Fetch(ctx, id)
		if err != nil {
			// Not marked processed, so the next pass retries it
			logrus.Errorf("Failed to fetch message %s: %v", id, err)
			continue
		}

		r.processEmail(ctx, email)
		relayed++
	}

	r.metrics.ProcessedTotal.Set(float64(r.processed.Count()))
	r.metrics.PollDuration.Observe(time.Since(start).Seconds())

	if relayed > 0 {
		logrus.Infof("Processed %d new sent emails", relayed)
		if err := r.processed.Flush(); err != nil {
			logrus.Errorf("Failed to flush processed emails: %v", err)
			r.metrics.FlushFailures.Inc()
		}
	}
}

// processEmail relays one message: one summary, fanned out to every recipient
// with a directory mapping. Dispatch failures are isolated per recipient and
// the id is marked processed either way.
func (r *Relay) processEmail(ctx context.Context, email EmailMessage) {
	logrus.Infof("Processing email %q sent to %s", email.Subject, email.To)

	summary := summarize(email.Subject, email.Body)

	for _, address := range addressPattern.FindAllString(email.To, -1) {
		destination, ok := r.contacts.Resolve(address)
		if !ok {
			r.metrics.SkippedRecipients.Inc()
			r.logs.Record(email.ID, address, "", "skipped", "no contact mapping")
			continue
		}

		if err := r.messenger.SendText(ctx, destination, summary); err != nil {
			logrus.Errorf("Failed to send message to %s for email to %s: %v", destination, address, err)
			r.metrics.DispatchFailures.Inc()
			r.logs.Record(email.ID, address, destination, "failed", err.Error())
			continue
		}

		logrus.Infof("Message sent to %s for email to %s", destination, address)
		r.metrics.RelayedMessages.Inc()
		r.logs.Record(email.ID, address, destination, "relayed", "")
	}

	r.processed.Add(email.ID)
}

// Close closes the active fetcher
func (r *Relay) Close() error {
	fetcher := r.currentFetcher()
	if fetcher == nil {
		return nil
	}
	return fetcher.Close()
}
