package ws

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/protocol"
	"github.com/tokmz/relay/pkg/tracing"
)

// FailureFunc 投递失败回调，由调用方走正常的移除流程
type FailureFunc func(ctx context.Context, conn Conn, err error)

// Dispatcher 广播分发器
type Dispatcher struct {
	registry  *Registry
	logger    logger.Logger
	metrics   Metrics
	onFailure FailureFunc
}

// NewDispatcher 创建分发器
func NewDispatcher(registry *Registry, log logger.Logger, metrics Metrics, onFailure FailureFunc) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Dispatcher{
		registry:  registry,
		logger:    log,
		metrics:   metrics,
		onFailure: onFailure,
	}
}

// failure 单个连接的投递失败
type failure struct {
	conn Conn
	err  error
}

// Broadcast 广播事件，exclude 为 nil 时投递给所有连接
//
// 事件只序列化一次，按调用时的注册表快照投递。单个连接失败不影响其余连接，
// 失败的连接在遍历结束后交给 onFailure 移除，不重试。返回成功投递数。
func (d *Dispatcher) Broadcast(ctx context.Context, evt protocol.Event, exclude Conn) int {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "ws.broadcast",
		trace.WithAttributes(attribute.String("ws.event_type", string(evt.Type))))
	defer span.End()

	data, err := protocol.Encode(evt)
	if err != nil {
		tracing.RecordError(span, err)
		d.logger.ErrorContext(ctx, "encode event failed", zap.String("type", string(evt.Type)), zap.Error(err))
		return 0
	}

	var (
		delivered int
		failed    []failure
	)
	for _, c := range d.registry.Snapshot() {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		if !c.Open() {
			continue
		}
		if err := c.Send(data); err != nil {
			d.metrics.IncrementDroppedMessages()
			d.logger.WarnContext(ctx, "broadcast delivery failed",
				zap.String("conn_id", c.ID()),
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
			failed = append(failed, failure{conn: c, err: err})
			continue
		}
		delivered++
	}

	span.SetAttributes(
		attribute.Int("ws.delivered", delivered),
		attribute.Int("ws.failed", len(failed)),
	)
	d.metrics.RecordBroadcastLatency(time.Since(start))
	d.metrics.AddDelivered(string(evt.Type), delivered)

	if d.onFailure != nil {
		for _, f := range failed {
			d.onFailure(ctx, f.conn, f.err)
		}
	}
	return delivered
}
