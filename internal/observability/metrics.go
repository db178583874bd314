package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event metrics
	eventsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_reader_events_in_flight",
		Help: "Number of voice events currently being processed",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_events_total",
		Help: "Total number of voice events processed, by outcome",
	}, []string{"outcome"})

	eventDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_reader_event_duration_seconds",
		Help:    "End-to-end processing time of one voice event",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
	})

	// Stage metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_reader_stage_latency_seconds",
		Help:    "Pipeline stage latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_stage_requests_total",
		Help: "Total number of pipeline stage executions",
	}, []string{"stage", "status"})

	// Recognition and translation outcomes
	transcriptionResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_transcription_results_total",
		Help: "Recognition outcomes by status",
	}, []string{"status"})

	translationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_translation_results_total",
		Help: "Translation outcomes by status",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_errors_total",
		Help: "Total number of errors",
	}, []string{"kind", "component"})

	// Ingestion loop metrics
	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_reader_reconnects_total",
		Help: "Number of times the ingestion loop entered the reconnecting state",
	})

	loopState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_reader_loop_state",
		Help: "Ingestion loop supervision state (0=connected, 1=reconnecting, 2=stopped, 3=fatal, 4=starting)",
	})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_reader_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_reader_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"stage"}) // stage: "retrieved" or "normalized"
)

// Metrics tracks metrics for a single voice event
type Metrics struct {
	eventID     string
	startTime   time.Time
	stageStarts map[string]time.Time
	mu          sync.Mutex
}

// NewEventMetrics creates a new metrics tracker for an event
func NewEventMetrics(eventID string) *Metrics {
	return &Metrics{
		eventID:     eventID,
		startTime:   time.Now(),
		stageStarts: make(map[string]time.Time),
	}
}

// RecordEventStart records the start of an event
func (m *Metrics) RecordEventStart() {
	eventsInFlight.Inc()
}

// RecordEventEnd records the end of an event with its outcome label
func (m *Metrics) RecordEventEnd(outcome string) {
	eventsInFlight.Dec()
	eventsTotal.WithLabelValues(outcome).Inc()
	eventDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordStageStart records the start of a pipeline stage.
// Safe to call from the concurrent reading and translation stages.
func (m *Metrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStarts[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records the end of a pipeline stage
func (m *Metrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	start, ok := m.stageStarts[stage]
	delete(m.stageStarts, stage)
	m.mu.Unlock()

	if ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordTranscription records a recognition outcome
func (m *Metrics) RecordTranscription(status string) {
	transcriptionResults.WithLabelValues(status).Inc()
}

// RecordTranslation records a translation outcome
func (m *Metrics) RecordTranslation(status string) {
	translationResults.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(kind, component string) {
	RecordError(kind, component)
}

// RecordAudioBytes records audio bytes processed at a stage
func (m *Metrics) RecordAudioBytes(stage string, bytes int64) {
	audioBytesProcessed.WithLabelValues(stage).Add(float64(bytes))
}

// RecordError records an error outside an event scope
func RecordError(kind, component string) {
	errorsTotal.WithLabelValues(kind, component).Inc()
}

// RecordReconnect counts an entry into the reconnecting state
func RecordReconnect() {
	reconnectsTotal.Inc()
}

// SetLoopState exports the ingestion loop supervision state
func SetLoopState(state int) {
	loopState.Set(float64(state))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
