package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollCount         prometheus.Counter
	RelayedMessages   prometheus.Counter
	DispatchFailures  prometheus.Counter
	SkippedRecipients prometheus.Counter
	FlushFailures     prometheus.Counter
	ProcessedTotal    prometheus.Gauge
	PollDuration      prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PollCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_chat_relay_poll_count",
			Help: "Total number of mail poll passes",
		}),
		RelayedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_chat_relay_relayed_messages",
			Help: "Total number of chat messages dispatched",
		}),
		DispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_chat_relay_dispatch_failures",
			Help: "Total number of failed chat dispatches",
		}),
		SkippedRecipients: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_chat_relay_skipped_recipients",
			Help: "Total number of recipients without a contact mapping",
		}),
		FlushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_chat_relay_flush_failures",
			Help: "Total number of failed processed-set flushes",
		}),
		ProcessedTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mail_chat_relay_processed_total",
			Help: "Number of message ids in the processed set",
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_chat_relay_poll_duration_seconds",
			Help:    "Time spent per mail poll pass",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
