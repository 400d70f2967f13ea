// Package metrics exposes Prometheus collectors and the economy operation logger.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/promorang/pkg/economy"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "promorang"

// Registry holds the service collectors.
type Registry struct {
	registry       *prometheus.Registry
	httpInFlight   prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	operations     *prometheus.CounterVec
	operationValue *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
}

// NewRegistry registers every collector on a fresh registry.
func NewRegistry() *Registry {
	registry := &Registry{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "operations_total",
			Help:      "Economy operations by outcome.",
		}, []string{"operation", "status"}),
		operationValue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "economy",
			Name:      "operation_amount_total",
			Help:      "Currency amounts moved by successful economy operations.",
		}, []string{"operation", "currency"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "job_runs_total",
			Help:      "Automation job runs by outcome.",
		}, []string{"job", "status"}),
	}
	registry.registry.MustRegister(
		registry.httpInFlight,
		registry.httpRequests,
		registry.httpDuration,
		registry.operations,
		registry.operationValue,
		registry.jobRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return registry
}

// Gatherer exposes the underlying registry.
func (registry *Registry) Gatherer() prometheus.Gatherer {
	return registry.registry
}

// Handler serves the exposition format.
func (registry *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(registry.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency by route template.
func (registry *Registry) GinMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		route := ctx.FullPath()
		if route == "/metrics" {
			ctx.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}
		registry.httpInFlight.Inc()
		start := time.Now()
		ctx.Next()
		registry.httpInFlight.Dec()
		method := ctx.Request.Method
		registry.httpRequests.WithLabelValues(method, route, strconv.Itoa(ctx.Writer.Status())).Inc()
		registry.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveJob counts one automation run.
func (registry *Registry) ObserveJob(job string, status string) {
	registry.jobRuns.WithLabelValues(job, status).Inc()
}

// OperationLogger writes economy operation records to zap and Prometheus.
type OperationLogger struct {
	logger   *zap.Logger
	registry *Registry
}

// NewOperationLogger builds an economy.OperationLogger. Either dependency may be nil.
func NewOperationLogger(logger *zap.Logger, registry *Registry) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger, registry: registry}
}

// LogOperation implements economy.OperationLogger.
func (operationLogger *OperationLogger) LogOperation(ctx context.Context, entry economy.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.String("user_id", entry.UserID.String()),
		zap.String("currency", entry.Currency.String()),
		zap.Int64("amount", entry.Amount),
	}
	if !entry.IdempotencyKey.IsZero() {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn("economy operation failed", fields...)
	} else {
		operationLogger.logger.Info("economy operation", fields...)
	}
	if operationLogger.registry == nil {
		return
	}
	operationLogger.registry.operations.WithLabelValues(entry.Operation, entry.Status).Inc()
	if entry.Error == nil && entry.Amount > 0 && entry.Currency != "" {
		operationLogger.registry.operationValue.WithLabelValues(entry.Operation, entry.Currency.String()).Add(float64(entry.Amount))
	}
}
