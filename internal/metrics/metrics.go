package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_messages_queued_total",
		Help: "Total number of messages enqueued, by producer.",
	}, []string{"source"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_messages_sent_total",
		Help: "Total number of messages handed off to the channel provider.",
	})

	MessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_messages_failed_total",
		Help: "Total number of send failures, split by terminal or retryable.",
	}, []string{"terminal"})

	RateLimitDeferrals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_rate_limit_deferrals_total",
		Help: "Dispatch cycles cut short because a send window was exhausted.",
	})

	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_alerts_generated_total",
		Help: "Smart alerts produced by the detector battery, by type.",
	}, []string{"type"})

	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_queue_pending",
		Help: "Current number of pending messages in the queue.",
	})
)
