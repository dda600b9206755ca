package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tokmz/relay/pkg/ws"
	"github.com/tokmz/relay/pkg/wsclient"
)

var (
	_ ws.Metrics       = (*Collector)(nil)
	_ wsclient.Metrics = (*ClientCollector)(nil)
)

// Collector 服务端指标，实现 ws.Metrics
type Collector struct {
	connectionsTotal  prometheus.Counter
	disconnectsTotal  prometheus.Counter
	online            prometheus.Gauge
	evictions         *prometheus.CounterVec
	messages          *prometheus.CounterVec
	invalidMessages   prometheus.Counter
	broadcastDuration prometheus.Histogram
	delivered         *prometheus.CounterVec
	droppedMessages   prometheus.Counter
	transportErrors   *prometheus.CounterVec
}

// New 创建服务端指标并注册
func New(opts ...Option) *Collector {
	cfg := buildConfig(opts)
	factory := promauto.With(cfg.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.ConstLabels,
		}, labels)
	}

	return &Collector{
		connectionsTotal: counter("connections_total", "Total number of sessions that joined"),
		disconnectsTotal: counter("disconnects_total", "Total number of sessions that left"),
		online: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "online_sessions",
			Help:        "Number of sessions currently registered",
			ConstLabels: cfg.ConstLabels,
		}),
		evictions:       counterVec("evictions_total", "Connections evicted by the liveness monitor", "reason"),
		messages:        counterVec("messages_total", "Inbound commands by kind", "kind"),
		invalidMessages: counter("invalid_messages_total", "Inbound frames discarded as malformed"),
		broadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "broadcast_duration_seconds",
			Help:        "Time spent fanning out one event",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
		delivered:       counterVec("deliveries_total", "Frames handed to connection send queues", "type"),
		droppedMessages: counter("dropped_messages_total", "Frames that could not be queued"),
		transportErrors: counterVec("transport_errors_total", "Read and write failures", "op"),
	}
}

func (c *Collector) IncrementConnections()            { c.connectionsTotal.Inc() }
func (c *Collector) DecrementConnections()            { c.disconnectsTotal.Inc() }
func (c *Collector) SetConnectionCount(count int)     { c.online.Set(float64(count)) }
func (c *Collector) IncrementEvictions(reason string) { c.evictions.WithLabelValues(reason).Inc() }
func (c *Collector) IncrementMessageCount(kind string) {
	c.messages.WithLabelValues(kind).Inc()
}
func (c *Collector) IncrementInvalidMessages() { c.invalidMessages.Inc() }
func (c *Collector) RecordBroadcastLatency(d time.Duration) {
	c.broadcastDuration.Observe(d.Seconds())
}
func (c *Collector) AddDelivered(eventType string, n int) {
	if n > 0 {
		c.delivered.WithLabelValues(eventType).Add(float64(n))
	}
}
func (c *Collector) IncrementDroppedMessages() { c.droppedMessages.Inc() }
func (c *Collector) IncrementReadErrors()      { c.transportErrors.WithLabelValues("read").Inc() }
func (c *Collector) IncrementWriteErrors()     { c.transportErrors.WithLabelValues("write").Inc() }

// ClientCollector 客户端指标，实现 wsclient.Metrics
type ClientCollector struct {
	reconnects prometheus.Counter
	giveUps    prometheus.Counter
	state      *prometheus.GaugeVec
}

// NewClient 创建客户端指标并注册
func NewClient(opts ...Option) *ClientCollector {
	cfg := buildConfig(opts)
	factory := promauto.With(cfg.Registry)

	return &ClientCollector{
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "client",
			Name:        "reconnects_total",
			Help:        "Automatic reconnect attempts scheduled",
			ConstLabels: cfg.ConstLabels,
		}),
		giveUps: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "client",
			Name:        "give_ups_total",
			Help:        "Times the retry limit was exhausted",
			ConstLabels: cfg.ConstLabels,
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   "client",
			Name:        "state",
			Help:        "Current connection state (1 for the active state)",
			ConstLabels: cfg.ConstLabels,
		}, []string{"state"}),
	}
}

func (c *ClientCollector) IncrementReconnects() { c.reconnects.Inc() }
func (c *ClientCollector) IncrementGiveUps()    { c.giveUps.Inc() }

// SetState 当前状态置 1，其余置 0
func (c *ClientCollector) SetState(state string) {
	for _, s := range []wsclient.State{wsclient.StateIdle, wsclient.StateConnecting, wsclient.StateOpen, wsclient.StateClosed} {
		v := 0.0
		if s.String() == state {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

// Handler 暴露指标的 HTTP 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
