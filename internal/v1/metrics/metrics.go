package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the trivia room platform.
//
// Naming convention: namespace_subsystem_name
// - namespace: quiz (application-level grouping)
// - subsystem: websocket, room, game, generation (feature-level grouping)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, timer tasks)
// - Counter: Cumulative events (socket events, generation outcomes)
// - Histogram: Latency distributions (event handling time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live rooms in the registry
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomParticipants tracks the number of participants in each room
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of participants in each room",
	}, []string{"pin"})

	// RunningTimerTasks tracks live countdown tasks across all rooms
	RunningTimerTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "game",
		Name:      "timer_tasks_running",
		Help:      "Current number of running per-room timer tasks",
	})

	// WebsocketEvents tracks the total number of socket events processed
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// EventHandlingDuration tracks the time spent handling socket events
	EventHandlingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quiz",
		Subsystem: "websocket",
		Name:      "event_handling_seconds",
		Help:      "Time spent handling WebSocket events",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"event_type"})

	// QuestionGeneration tracks provider outcomes by source
	QuestionGeneration = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "generation",
		Name:      "requests_total",
		Help:      "Question generation requests by source (ai or fallback)",
	}, []string{"source"})

	// CircuitBreakerState exposes the breaker state of external dependencies
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "generation",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"dependency"})

	// RateLimitRequests counts requests evaluated by the rate limiter
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Requests evaluated by the rate limiter",
	}, []string{"path"})

	// RateLimitExceeded counts rejected requests
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Requests rejected by the rate limiter",
	}, []string{"path", "limit_type"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
