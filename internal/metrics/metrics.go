// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gps_relay"

var (
	// Stream metrics
	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_bytes_total",
		Help:      "Bytes read from the upstream NMEA stream",
	})

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_reconnects_total",
			Help:      "Upstream reconnect attempts by outcome",
		},
		[]string{"outcome"},
	)

	UpstreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upstream_connected",
		Help:      "1 while the upstream stream is connected",
	})

	// Decode metrics
	Sentences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_total",
			Help:      "Framed sentences by kind and result",
		},
		[]string{"kind", "result"},
	)

	LinesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_dropped_total",
			Help:      "Lines discarded by the framer",
		},
		[]string{"reason"},
	)

	// Dispatch metrics
	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Document pushes to subscribers by result",
		},
		[]string{"result"},
	)

	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscriptions",
		Help:      "Live subscriptions",
	})

	Buckets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "period_buckets",
		Help:      "Period buckets currently held",
	})

	// Sink metrics
	SinkPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publishes_total",
			Help:      "Documents published to sinks by sink and result",
		},
		[]string{"sink", "result"},
	)
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultGone     = "gone"
	ResultFailed   = "failed"
)
