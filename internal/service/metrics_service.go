package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Check-in outcome labels for the checkins_total counter.
const (
	CheckInResultOK              = "ok"
	CheckInResultInvalidSession  = "invalid_session"
	CheckInResultExpiredSession  = "expired_session"
	CheckInResultOutsideGeofence = "outside_geofence"
	CheckInResultFaceNotEnrolled = "face_not_enrolled"
	CheckInResultFaceMismatch    = "face_mismatch"
	CheckInResultError           = "error"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	checkinTotal    *prometheus.CounterVec
	faceConfidence  prometheus.Histogram
	checkinDistance prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
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

	checkinTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkins_total",
		Help: "Total check-in attempts by outcome",
	}, []string{"result"})

	faceConfidence := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_face_confidence",
		Help:    "Face match confidence for accepted check-ins",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	checkinDistance := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkin_distance_meters",
		Help:    "Distance from the session anchor for verified check-ins",
		Buckets: []float64{5, 10, 25, 50, 100, 150, 250, 500},
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, checkinTotal, faceConfidence, checkinDistance, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		checkinTotal:    checkinTotal,
		faceConfidence:  faceConfidence,
		checkinDistance: checkinDistance,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveCheckIn counts a check-in attempt by outcome.
func (m *MetricsService) ObserveCheckIn(result string) {
	if m == nil {
		return
	}
	m.checkinTotal.WithLabelValues(result).Inc()
}

// ObserveFaceConfidence records the confidence of an accepted face match.
func (m *MetricsService) ObserveFaceConfidence(confidence float64) {
	if m == nil {
		return
	}
	m.faceConfidence.Observe(confidence)
}

// ObserveCheckInDistance records the anchor distance of a verified check-in.
func (m *MetricsService) ObserveCheckInDistance(meters float64) {
	if m == nil {
		return
	}
	m.checkinDistance.Observe(meters)
}
