package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 当前长连接数
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_live_connections",
			Help: "Number of live websocket connections in this process",
		},
	)

	// 广播投递计数
	BroadcastFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_broadcast_frames_total",
			Help: "Frames handed to subscribers by the hub",
		},
		[]string{"result"}, // result: queued, dropped
	)

	// 消息写入计数
	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_messages_total",
			Help: "Message dispatch operations",
		},
		[]string{"op", "status"}, // op: send, edit, delete
	)

	// 通知创建计数
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_notifications_created_total",
			Help: "Notifications created by type",
		},
		[]string{"type"},
	)

	// 渠道投递尝试
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_delivery_attempts_total",
			Help: "Channel delivery attempts by outcome",
		},
		[]string{"channel", "outcome"}, // outcome: delivered, retry, failed
	)

	// 渠道投递延迟（毫秒）
	DeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_delivery_latency_ms",
			Help:    "Channel sender latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12), // 5ms to ~10s
		},
		[]string{"channel"},
	)

	// 投递队列长度
	DeliveryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_delivery_queue_depth",
			Help: "Jobs waiting in the delivery queue",
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordBroadcast(result string) {
	BroadcastFrames.WithLabelValues(result).Inc()
}

func RecordMessage(op, status string) {
	MessagesPersisted.WithLabelValues(op, status).Inc()
}

func RecordNotificationCreated(typeName string) {
	NotificationsCreated.WithLabelValues(typeName).Inc()
}

// RecordDeliveryAttempt 记录一次渠道投递的结果与耗时
func RecordDeliveryAttempt(channel, outcome string, duration time.Duration) {
	DeliveryAttempts.WithLabelValues(channel, outcome).Inc()
	DeliveryLatency.WithLabelValues(channel).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
