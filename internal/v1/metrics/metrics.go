// Package metrics declares the Prometheus instrumentation for the
// session engine, adapted from the teacher's internal/v1/metrics/metrics.go
// promauto idiom: namespace "gomoku", subsystem per feature area, Gauge
// for current state, CounterVec for cumulative events, HistogramVec for
// latency distributions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the current number of live TCP connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gomoku",
		Subsystem: "session",
		Name:      "connections_active",
		Help:      "Current number of active TCP connections",
	})

	// ActiveRooms tracks the current number of rooms held by the registry.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gomoku",
		Subsystem: "registry",
		Name:      "rooms_active",
		Help:      "Current number of rooms tracked by the registry",
	})

	// RoomParticipants tracks live players+spectators per room.
	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gomoku",
		Subsystem: "room",
		Name:      "participants_count",
		Help:      "Number of live participants in each room",
	}, []string{"room_id"})

	// MessagesTotal tracks dispatched protocol messages by type and outcome.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "session",
		Name:      "messages_total",
		Help:      "Total protocol messages dispatched",
	}, []string{"type", "status"})

	// MessageProcessingDuration tracks time spent dispatching one message.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gomoku",
		Subsystem: "session",
		Name:      "message_processing_seconds",
		Help:      "Time spent dispatching one protocol message",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})

	// StonesPlaced tracks total successful placements.
	StonesPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "game",
		Name:      "stones_placed_total",
		Help:      "Total stones successfully placed",
	}, []string{"color"})

	// GamesFinished tracks completed games by how they ended.
	GamesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "game",
		Name:      "finished_total",
		Help:      "Total games that reached Finished, by reason",
	}, []string{"reason"})

	// ForfeitsTotal tracks forfeit-monitor expirations.
	ForfeitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "forfeit",
		Name:      "expired_total",
		Help:      "Total disconnection records expired by the forfeit monitor",
	})

	// ForfeitSweepDuration tracks sweep latency across all rooms.
	ForfeitSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gomoku",
		Subsystem: "forfeit",
		Name:      "sweep_duration_seconds",
		Help:      "Time spent sweeping all rooms for expired disconnections",
		Buckets:   prometheus.DefBuckets,
	})

	// RematchesStarted tracks successful mutual rematch agreements.
	RematchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "game",
		Name:      "rematches_started_total",
		Help:      "Total rematches that reached mutual agreement",
	})

	// TimerTicksTotal tracks turn-timer goroutine wakeups, a cheap proxy
	// for confirming exactly one timer is live per active room.
	TimerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "room",
		Name:      "timer_ticks_total",
		Help:      "Total turn-timer goroutine wakeups across all rooms",
	})

	// CircuitBreakerState mirrors the bus circuit breaker's state.
	// 0: Closed (healthy), 1: Open (failing), 2: Half-Open (recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gomoku",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by an open breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks throttled requests.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by the rate limiter",
	}, []string{"scope", "reason"})

	// RateLimitRequests tracks requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total requests checked against the rate limiter",
	}, []string{"scope"})

	// RedisOperationsTotal tracks bus operations by outcome.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gomoku",
		Subsystem: "bus",
		Name:      "operations_total",
		Help:      "Total bus (Redis) operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks bus operation latency.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gomoku",
		Subsystem: "bus",
		Name:      "operation_duration_seconds",
		Help:      "Duration of bus (Redis) operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
