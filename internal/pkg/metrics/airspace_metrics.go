package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AirspaceMetrics 空域业务指标收集器
type AirspaceMetrics struct {
	// 当前进行中的飞行数（Gauge 类型，可增可减）
	ActiveFlights prometheus.Gauge

	// 飞行开始/结束次数（按结束原因分组：manual/expired）
	FlightsStartedTotal prometheus.Counter
	FlightsEndedTotal   *prometheus.CounterVec

	// 遭遇事件数（按生命周期事件分组：created/resolved/cancelled/timed_out）
	EncountersTotal *prometheus.CounterVec

	// 探测循环单次扫描耗时直方图
	DetectionTickDuration prometheus.Histogram

	// 推送通知次数（按事件名分组）
	NotificationsTotal *prometheus.CounterVec
}

var (
	// DefaultAirspaceMetrics 默认的空域指标实例
	DefaultAirspaceMetrics *AirspaceMetrics
)

// DetectionBuckets 针对探测循环耗时优化的 buckets
// 扫描预期时长: 1ms-1s 为主，超过扫描间隔(5s)即为异常
// 单位：秒
var DetectionBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.5,   // 500ms
	1,     // 1s
	5,     // 5s
}

// init 初始化默认指标
func init() {
	DefaultAirspaceMetrics = NewAirspaceMetrics("taklaci")
}

// NewAirspaceMetrics 创建新的空域指标收集器
func NewAirspaceMetrics(namespace string) *AirspaceMetrics {
	return NewAirspaceMetricsWithRegistry(namespace, GetRegisterer())
}

// NewAirspaceMetricsWithRegistry 创建新的空域指标收集器（使用自定义注册表）
func NewAirspaceMetricsWithRegistry(namespace string, registerer prometheus.Registerer) *AirspaceMetrics {
	factory := promauto.With(registerer)

	return &AirspaceMetrics{
		ActiveFlights: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "airspace",
				Name:      "active_flights",
				Help:      "Current number of active flight sessions",
			},
		),

		FlightsStartedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "airspace",
				Name:      "flights_started_total",
				Help:      "Total number of flight sessions started",
			},
		),

		FlightsEndedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "airspace",
				Name:      "flights_ended_total",
				Help:      "Total number of flight sessions ended, by reason (manual/expired)",
			},
			[]string{"reason"},
		),

		EncountersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "airspace",
				Name:      "encounters_total",
				Help:      "Total encounter lifecycle events (created/resolved/cancelled/timed_out)",
			},
			[]string{"event"},
		),

		DetectionTickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "airspace",
				Name:      "detection_tick_duration_seconds",
				Help:      "Duration of a single encounter detection scan",
				Buckets:   DetectionBuckets,
			},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "airspace",
				Name:      "notifications_total",
				Help:      "Total push notifications published, by event name",
			},
			[]string{"event"},
		),
	}
}

// RecordFlightStarted 记录一次飞行开始
func (m *AirspaceMetrics) RecordFlightStarted() {
	m.FlightsStartedTotal.Inc()
	m.ActiveFlights.Inc()
}

// RecordFlightEnded 记录一次飞行结束
func (m *AirspaceMetrics) RecordFlightEnded(reason string) {
	m.FlightsEndedTotal.WithLabelValues(reason).Inc()
	m.ActiveFlights.Dec()
}

// RecordEncounterEvent 记录一次遭遇生命周期事件
func (m *AirspaceMetrics) RecordEncounterEvent(event string) {
	m.EncountersTotal.WithLabelValues(event).Inc()
}

// RecordDetectionTick 记录一次探测扫描耗时
func (m *AirspaceMetrics) RecordDetectionTick(d time.Duration) {
	m.DetectionTickDuration.Observe(d.Seconds())
}

// RecordNotification 记录一次推送
func (m *AirspaceMetrics) RecordNotification(event string) {
	m.NotificationsTotal.WithLabelValues(event).Inc()
}
