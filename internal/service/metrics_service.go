package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// MetricsSnapshot is the JSON summary served next to the Prometheus endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64           `json:"requests_total"`
	AverageRequestDurationMs float64          `json:"average_request_duration_ms"`
	JobsByStatus             map[string]int64 `json:"jobs_by_status"`
	AverageJobDurationMs     float64          `json:"average_job_duration_ms"`
	CollabSessions           int64            `json:"collab_sessions"`
	CollabParticipants       int64            `json:"collab_participants"`
	CollabDropped            uint64           `json:"collab_dropped_total"`
	Goroutines               int              `json:"goroutines"`
	GeneratedAt              time.Time        `json:"generated_at"`
}

// MetricsService encapsulates Prometheus instrumentation and keeps counters for snapshots.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobQuality      prometheus.Histogram
	collabSessions  prometheus.Gauge
	collabPeers     prometheus.Gauge
	collabDropped   *prometheus.CounterVec
	relayMessages   *prometheus.CounterVec

	requestCount         uint64
	requestDurationTotal uint64
	jobCount             uint64
	jobDurationTotal     uint64
	sessionCount         int64
	participantCount     int64
	droppedCount         uint64
	jobStatus            [5]int64
}

var jobStatusIndex = map[models.SchedulingStatus]int{
	models.SchedulingStatusPending:   0,
	models.SchedulingStatusRunning:   1,
	models.SchedulingStatusCompleted: 2,
	models.SchedulingStatusFailed:    3,
	models.SchedulingStatusCancelled: 4,
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_jobs_total",
		Help: "Scheduling jobs by terminal status",
	}, []string{"status"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduling_job_duration_seconds",
		Help:    "Wall time of scheduling runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"algorithm"})

	jobQuality := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduling_quality_score",
		Help:    "Quality score of finished scheduling runs",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	collabSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_sessions",
		Help: "Open collaborative editing sessions",
	})

	collabPeers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_participants",
		Help: "Connected collaborative editing participants",
	})

	collabDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_dropped_connections_total",
		Help: "Participants disconnected by the server",
	}, []string{"reason"})

	relayMessages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_refresh_messages_total",
		Help: "Timetable refresh notifications by direction",
	}, []string{"direction"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, jobsTotal, jobDuration, jobQuality,
		collabSessions, collabPeers, collabDropped, relayMessages, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		jobQuality:      jobQuality,
		collabSessions:  collabSessions,
		collabPeers:     collabPeers,
		collabDropped:   collabDropped,
		relayMessages:   relayMessages,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveSchedulingJob records a job that reached a terminal status.
func (m *MetricsService) ObserveSchedulingJob(job *models.SchedulingJob) {
	if m == nil || job == nil {
		return
	}
	m.jobsTotal.WithLabelValues(string(job.Status)).Inc()
	if idx, ok := jobStatusIndex[job.Status]; ok {
		atomic.AddInt64(&m.jobStatus[idx], 1)
	}
	if job.DurationMillis != nil {
		duration := time.Duration(*job.DurationMillis) * time.Millisecond
		m.jobDuration.WithLabelValues(string(job.Algorithm)).Observe(duration.Seconds())
		atomic.AddUint64(&m.jobCount, 1)
		atomic.AddUint64(&m.jobDurationTotal, uint64(duration.Nanoseconds()))
	}
	if job.Status == models.SchedulingStatusCompleted && job.QualityScore != nil {
		m.jobQuality.Observe(*job.QualityScore)
	}
}

// SetCollabSessions reports the number of open sessions.
func (m *MetricsService) SetCollabSessions(n int) {
	if m == nil {
		return
	}
	m.collabSessions.Set(float64(n))
	atomic.StoreInt64(&m.sessionCount, int64(n))
}

// SetCollabParticipants reports the number of connected participants.
func (m *MetricsService) SetCollabParticipants(n int) {
	if m == nil {
		return
	}
	m.collabPeers.Set(float64(n))
	atomic.StoreInt64(&m.participantCount, int64(n))
}

// IncCollabDropped counts a participant the server disconnected.
func (m *MetricsService) IncCollabDropped(reason string) {
	if m == nil {
		return
	}
	m.collabDropped.WithLabelValues(reason).Inc()
	atomic.AddUint64(&m.droppedCount, 1)
}

// ObserveRelayMessage counts refresh notifications sent to or received from the relay.
func (m *MetricsService) ObserveRelayMessage(direction string) {
	if m == nil {
		return
	}
	m.relayMessages.WithLabelValues(direction).Inc()
}

// Snapshot returns aggregated metrics for the JSON summary endpoint.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{JobsByStatus: map[string]int64{}, GeneratedAt: time.Now().UTC()}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	jobs := atomic.LoadUint64(&m.jobCount)
	jobDuration := atomic.LoadUint64(&m.jobDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}
	var avgJobMs float64
	if jobs > 0 {
		avgJobMs = float64(jobDuration) / float64(jobs) / float64(time.Millisecond)
	}

	byStatus := make(map[string]int64, len(jobStatusIndex))
	for status, idx := range jobStatusIndex {
		if count := atomic.LoadInt64(&m.jobStatus[idx]); count > 0 {
			byStatus[string(status)] = count
		}
	}

	return MetricsSnapshot{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		JobsByStatus:             byStatus,
		AverageJobDurationMs:     avgJobMs,
		CollabSessions:           atomic.LoadInt64(&m.sessionCount),
		CollabParticipants:       atomic.LoadInt64(&m.participantCount),
		CollabDropped:            atomic.LoadUint64(&m.droppedCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
