// Package metrics exposes the client's prometheus counters. They register on
// the default registry; the mock upstream server serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamsStarted counts chat turns issued.
	StreamsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kgchat",
		Name:      "streams_started_total",
		Help:      "Number of chat turns issued to the upstream.",
	})

	// StreamTokens counts token events folded into live previews.
	StreamTokens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kgchat",
		Name:      "stream_tokens_total",
		Help:      "Number of token events received across all streams.",
	})

	// StreamErrors counts turns that ended in a transport or server error.
	StreamErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kgchat",
		Name:      "stream_errors_total",
		Help:      "Number of chat turns that failed.",
	})

	// StreamsCancelled counts turns stopped by the user.
	StreamsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kgchat",
		Name:      "streams_cancelled_total",
		Help:      "Number of chat turns cancelled by the user.",
	})
)
