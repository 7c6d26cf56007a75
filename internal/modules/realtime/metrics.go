package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studioboard_realtime_events_dispatched_total",
		Help: "Push events dispatched to subscribers, by event type.",
	}, []string{"type"})

	reconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studioboard_realtime_reconnect_attempts_total",
		Help: "Reconnection attempts after a lost or failed connection.",
	})

	heartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "studioboard_realtime_heartbeat_timeouts_total",
		Help: "Connections dropped because a pong did not arrive in time.",
	})
)
