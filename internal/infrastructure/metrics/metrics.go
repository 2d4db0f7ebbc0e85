package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Broker metrics
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_messages_published_total",
			Help: "Total messages published to the broker",
		},
		[]string{"exchange", "routing_key"},
	)

	DeliveriesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_deliveries_consumed_total",
			Help: "Total deliveries consumed, by queue and outcome",
		},
		[]string{"queue", "outcome"}, // "ack", "nack", "error"
	)

	BrokerReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_broker_reconnects_total",
			Help: "Total broker connection attempts after a loss",
		},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_cache_lookups_total",
			Help: "Total cache lookups, by result",
		},
		[]string{"result"}, // "hit" or "miss"
	)

	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_lock_acquisitions_total",
			Help: "Total distributed lock attempts, by outcome",
		},
		[]string{"outcome"}, // "acquired", "busy", "error"
	)

	// Realtime metrics
	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_relay_events_total",
			Help: "Total socket relay events processed, by kind",
		},
		[]string{"kind"},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_ws_connected_clients",
			Help: "Currently connected websocket clients",
		},
	)

	// Campaign metrics
	FollowupsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_followups_scheduled_total",
			Help: "Total follow-up sends scheduled through the delay ring",
		},
	)
)
