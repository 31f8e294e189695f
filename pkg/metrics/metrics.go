// Package metrics holds the Prometheus collectors of the bot. They are
// registered with the default registry on import and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "joby"

// UpdatesTotal counts inbound Telegram updates.
// Label:
//   - kind: "text", "contact", "command" or "ignored"
var UpdatesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Total number of Telegram updates received, by kind.",
	},
	[]string{"kind"},
)

// CommitsTotal counts flow commits.
// Labels:
//   - flow: "registration" or "job_posting"
//   - result: "ok" or "error"
var CommitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Total number of conversation commits, by flow and result.",
	},
	[]string{"flow", "result"},
)

// StoreRetriesTotal counts retried record-store operations.
// Label:
//   - op: operation name (e.g. "insert_user", "insert_job")
var StoreRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_total",
		Help:      "Total number of record-store retries after a transient failure.",
	},
	[]string{"op"},
)

// StoreExhaustedTotal counts operations that failed after every attempt.
var StoreExhaustedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_exhausted_total",
		Help:      "Total number of record-store operations that exhausted their retries.",
	},
	[]string{"op"},
)

// ValidationFailuresTotal counts rejected answers.
// Label:
//   - state: the conversation state that rejected the input
var ValidationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_failures_total",
		Help:      "Total number of answers rejected by validation, by state.",
	},
	[]string{"state"},
)

// MenuClicksTotal counts main menu actions.
var MenuClicksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "menu_clicks_total",
		Help:      "Total number of main menu actions, by action.",
	},
	[]string{"action"},
)
