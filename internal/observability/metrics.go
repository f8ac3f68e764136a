package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// States a relay session can report.
var sessionStates = []string{"disconnected", "connecting", "connected", "reconnecting"}

var (
	registerOnce sync.Once

	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeio",
			Subsystem: "session",
			Name:      "connect_attempts_total",
			Help:      "Relay connection attempts by result.",
		},
		[]string{"result"},
	)
	reconnectDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "edgeio",
			Subsystem: "session",
			Name:      "reconnect_delay_seconds",
			Help:      "Scheduled reconnect delays.",
			Buckets:   []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 10},
		},
	)
	sessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgeio",
			Subsystem: "session",
			Name:      "state",
			Help:      "1 for the current relay session state, 0 otherwise.",
		},
		[]string{"state"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeio",
			Subsystem: "session",
			Name:      "frames_total",
			Help:      "Frames moved over the relay socket.",
		},
		[]string{"direction", "result"},
	)
	bridgeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeio",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Host events seen by the bridge by outcome.",
		},
		[]string{"event", "outcome"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeio",
			Subsystem: "dispatch",
			Name:      "commands_total",
			Help:      "Inbound relay commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)
)

// Collectors lists every relay collector, for custom registries.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{connectAttempts, reconnectDelay, sessionState, frames, bridgeEvents, commands}
}

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(Collectors()...)
	})
}

func RecordConnectAttempt(result string) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(result).Inc()
}

func RecordReconnectScheduled(delay time.Duration) {
	RegisterMetrics()
	reconnectDelay.Observe(delay.Seconds())
}

func SetSessionState(state string) {
	RegisterMetrics()
	for _, s := range sessionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		sessionState.WithLabelValues(s).Set(v)
	}
}

func RecordFrame(direction, result string) {
	RegisterMetrics()
	frames.WithLabelValues(direction, result).Inc()
}

func RecordBridgeEvent(event, outcome string) {
	RegisterMetrics()
	bridgeEvents.WithLabelValues(event, outcome).Inc()
}

// RecordCommand counts one dispatched command. Callers map unknown remote
// names to a fixed label to bound cardinality.
func RecordCommand(command, outcome string) {
	RegisterMetrics()
	commands.WithLabelValues(command, outcome).Inc()
}
