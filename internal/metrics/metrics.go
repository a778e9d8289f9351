package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	ChannelsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_channels_created_total",
			Help: "Total channels created",
		},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_messages_sent_total",
			Help: "Total messages sent",
		},
		[]string{"kind"}, // "root" or "reply"
	)

	ReactionsToggled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_reactions_toggled_total",
			Help: "Total reaction add/remove operations",
		},
		[]string{"verb"}, // "add" or "remove"
	)

	ResourceLinksAttached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_resource_links_attached_total",
			Help: "Total resource links attached to messages",
		},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comms_search_queries_total",
			Help: "Total search queries",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comms_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)
)
