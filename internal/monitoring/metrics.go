package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attachpurge/backend/internal/domain"
)

const namespace = "attachpurge"

// Metrics 监控指标
type Metrics struct {
	registry prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 清理运行指标
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	RunInProgress    prometheus.Gauge
	LastRunTimestamp prometheus.Gauge

	// 附件与版本指标
	AttachmentsVisited prometheus.Counter
	VersionsDeleted    prometheus.Counter
	VersionsAvailable  prometheus.Counter
	BytesReclaimed     prometheus.Counter
	AnomaliesTotal     prometheus.Counter
	DeletionDuration   prometheus.Histogram

	// 邮件指标
	MailDeliveries *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标并注册到 reg
//
// 测试中传入 prometheus.NewRegistry()，避免重复注册到全局注册表。
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of purge runs by outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Purge run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		RunInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_in_progress",
				Help:      "1 while a purge run is executing",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last purge run ended",
			},
		),

		AttachmentsVisited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attachments_visited_total",
				Help:      "Attachments evaluated against a retention policy",
			},
		),
		VersionsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "versions_deleted_total",
				Help:      "Prior attachment versions deleted",
			},
		),
		VersionsAvailable: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "versions_available_total",
				Help:      "Eligible versions left in place (report-only or over the delete limit)",
			},
		),
		BytesReclaimed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_reclaimed_total",
				Help:      "Bytes freed by deleted versions",
			},
		),
		AnomaliesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Attachments skipped because an eligible version was not older than the current one",
			},
		),
		DeletionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "deletion_duration_seconds",
				Help:      "Latency of a single version deletion",
				Buckets:   prometheus.DefBuckets,
			},
		),

		MailDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mail_deliveries_total",
				Help:      "Report mail deliveries by result",
			},
			[]string{"result"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),
		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RunStarted 标记运行开始
func (m *Metrics) RunStarted() {
	m.RunInProgress.Set(1)
}

// RecordRun 记录一次运行的结果与统计
func (m *Metrics) RecordRun(result *domain.RunResult) {
	m.RunInProgress.Set(0)
	m.RunsTotal.WithLabelValues(string(result.Outcome)).Inc()
	m.RunDuration.Observe(result.Elapsed().Seconds())
	m.LastRunTimestamp.Set(float64(result.EndedAt.Unix()))

	s := result.Stats
	m.AttachmentsVisited.Add(float64(s.AttachmentsVisited))
	m.VersionsDeleted.Add(float64(s.VersionsDeleted))
	m.VersionsAvailable.Add(float64(s.VersionsAvailable))
	m.BytesReclaimed.Add(float64(s.BytesDeleted))
	m.AnomaliesTotal.Add(float64(s.AnomaliesSkipped))
}

// ObserveDeletion 记录单次删除耗时
func (m *Metrics) ObserveDeletion(d time.Duration) {
	m.DeletionDuration.Observe(d.Seconds())
}

// RecordMailDelivery 记录邮件投递结果
func (m *Metrics) RecordMailDelivery(err error) {
	if err != nil {
		m.MailDeliveries.WithLabelValues("failed").Inc()
		return
	}
	m.MailDeliveries.WithLabelValues("sent").Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// Handler 返回 Prometheus 指标处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
