package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 订单指标
	ordersCreatedTotal *prometheus.CounterVec

	// 结算指标
	settlementItemsTotal *prometheus.CounterVec
	settlementDuration   prometheus.Histogram

	// 钱包指标
	walletTopUpsTotal *prometheus.CounterVec

	// 通知指标
	notificationsTotal *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器，指标注册到 reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		ordersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_created_total",
				Help: "Total number of order placement attempts by result",
			},
			[]string{"result"},
		),

		settlementItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_items_total",
				Help: "Settled order items by status and failing step",
			},
			[]string{"status", "step"},
		),

		settlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_duration_seconds",
				Help:    "Duration of settling one order",
				Buckets: prometheus.DefBuckets,
			},
		),

		walletTopUpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_topups_total",
				Help: "Vendor wallet top-ups by status",
			},
			[]string{"status"},
		),

		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Notification deliveries by result",
			},
			[]string{"result"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordOrder 记录下单结果 (created / invalid / failed / replayed)
func (m *MetricsCollector) RecordOrder(result string) {
	if m == nil {
		return
	}
	m.ordersCreatedTotal.WithLabelValues(result).Inc()
}

// RecordSettlementItem 记录单个订单项的结算结果
func (m *MetricsCollector) RecordSettlementItem(status, step string) {
	if m == nil {
		return
	}
	m.settlementItemsTotal.WithLabelValues(status, step).Inc()
}

// ObserveSettlement 记录整单结算耗时
func (m *MetricsCollector) ObserveSettlement(duration time.Duration) {
	if m == nil {
		return
	}
	m.settlementDuration.Observe(duration.Seconds())
}

// RecordTopUp 记录充值结果
func (m *MetricsCollector) RecordTopUp(status string) {
	if m == nil {
		return
	}
	m.walletTopUpsTotal.WithLabelValues(status).Inc()
}

// RecordNotification 记录通知投递结果
func (m *MetricsCollector) RecordNotification(result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(result).Inc()
}
