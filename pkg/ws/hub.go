package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/relay/pkg/logger"
	"github.com/tokmz/relay/pkg/protocol"
)

// Hub 会话协议处理核心
//
// 组合身份分配、注册表、广播与存活监测，所有状态都挂在实例上，
// 由组合根创建并注入。
type Hub struct {
	// 核心组件
	ids        *Allocator
	registry   *Registry
	dispatcher *Dispatcher
	monitor    *LivenessMonitor
	router     *MessageRouter
	events     *EventBus

	// 配置
	config   *Config
	upgrader *Upgrader
	now      func() time.Time

	// 生命周期
	ctx     context.Context
	cancel  context.CancelFunc
	life    sync.Mutex // 保护 closed 置位与 wg.Add，Shutdown 之后不再 Add
	wg      sync.WaitGroup
	running atomic.Bool
	closed  atomic.Bool

	logger  logger.Logger
	metrics Metrics
}

// NewHub 创建 Hub
func NewHub(opts ...Option) (*Hub, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		ids:      NewAllocator(),
		registry: NewRegistry(config.MaxConnections),
		router:   NewMessageRouter(),
		events:   NewEventBus(config.EventWorkers, config.EventQueueSize),
		config:   config,
		upgrader: NewUpgrader(config.UpgraderConfig, config.HandshakeTimeout),
		now:      config.Clock,
		ctx:      ctx,
		cancel:   cancel,
		logger:   config.Logger.With(zap.String("component", "ws")),
		metrics:  config.Metrics,
	}
	h.dispatcher = NewDispatcher(h.registry, h.logger, h.metrics, h.evict)
	h.monitor = NewLivenessMonitor(h.registry, config.HeartbeatInterval, h.evict, h.logger, h.metrics)

	if err := h.setupRoutes(); err != nil {
		cancel()
		h.events.Close()
		return nil, err
	}
	h.setupEventHandlers()

	return h, nil
}

// Run 启动存活监测
func (h *Hub) Run() error {
	h.life.Lock()
	defer h.life.Unlock()

	if h.closed.Load() {
		return ErrHubClosed
	}
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}

	h.router.Freeze()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.monitor.Run(h.ctx)
	}()

	return nil
}

// Shutdown 优雅关闭
//
// 停止存活监测，关闭全部连接。关闭期间不再广播离开事件。
func (h *Hub) Shutdown(ctx context.Context) error {
	h.life.Lock()
	if !h.closed.CompareAndSwap(false, true) {
		h.life.Unlock()
		return nil
	}
	h.life.Unlock()
	h.cancel()

	// 并发关闭所有连接
	var closeWg sync.WaitGroup
	for _, c := range h.registry.Snapshot() {
		closeWg.Add(1)
		go func(conn Conn) {
			defer closeWg.Done()
			if _, _, removed := h.registry.Remove(conn.ID()); removed {
				h.metrics.DecrementConnections()
			}
			conn.Close()
		}(c)
	}
	closeWg.Wait()
	h.metrics.SetConnectionCount(h.registry.Count())

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	defer h.events.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Admit 检查是否还能接受新连接
//
// 升级后无法再返回 HTTP 状态码，调用方应在升级前检查。
func (h *Hub) Admit() error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if h.registry.Count() >= h.config.MaxConnections {
		return ErrTooManyConnections
	}
	return nil
}

// HandleUpgrade 处理 WebSocket 升级
func (h *Hub) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if err := h.Admit(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return err
	}

	conn, err := h.upgrader.Upgrade(w, r)
	if err != nil {
		return err
	}

	client := newClient(conn, h)
	if _, err := h.Connect(h.ctx, client); err != nil {
		client.Close()
		return err
	}

	// 与 Shutdown 并发时，注册可能晚于其快照，由这里收尾
	h.life.Lock()
	if h.closed.Load() {
		h.life.Unlock()
		h.Disconnect(h.ctx, client, ErrHubClosed)
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.life.Unlock()

	go func() {
		defer h.wg.Done()
		client.run()
	}()

	return nil
}

// Connect 注册新连接
//
// 私有的 welcome 与 connection_ack 先于任何广播进入该连接的发送队列，
// 随后向其他连接广播加入事件。
func (h *Hub) Connect(ctx context.Context, conn Conn) (Session, error) {
	if h.closed.Load() {
		return Session{}, ErrHubClosed
	}

	id, name := h.ids.Allocate()
	s := Session{ID: id, Name: name, LastAck: h.now()}

	var online int
	err := h.registry.Insert(conn, s, func(n int) {
		online = n
		h.sendPrivate(conn, protocol.Welcome(id, name, n))
		h.sendPrivate(conn, protocol.ConnectionAck())
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateConnection) {
			h.logger.Error("connection registered twice", zap.String("conn_id", conn.ID()), zap.Error(err))
		} else {
			h.logger.Warn("reject connection", zap.String("conn_id", conn.ID()), zap.Error(err))
		}
		return Session{}, err
	}

	h.logger.Info("session joined",
		zap.String("conn_id", conn.ID()),
		zap.String("session_id", id),
		zap.Int("online", online),
	)
	h.events.Publish(Event{Type: EventSessionJoined, ConnID: conn.ID(), Session: s, Time: s.LastAck})

	h.dispatcher.Broadcast(ctx, protocol.Joined(id, name, online), conn)
	return s, nil
}

// Handle 处理一帧入站消息
//
// 畸形帧与未知类型只记录日志，连接保持打开。
func (h *Hub) Handle(ctx context.Context, conn Conn, frame []byte) {
	s, ok := h.registry.Lookup(conn.ID())
	if !ok {
		h.logger.Warn("frame from unregistered connection", zap.String("conn_id", conn.ID()))
		return
	}

	ctx = logger.ContextWithSessionID(ctx, s.ID)

	cmd, err := protocol.DecodeCommand(frame)
	if err != nil {
		h.metrics.IncrementInvalidMessages()
		h.logger.WarnContext(ctx, "discard malformed frame", zap.Error(err))
		h.events.Publish(Event{Type: EventFrameRejected, ConnID: conn.ID(), Session: s, Data: err, Time: h.now()})
		return
	}

	h.events.Publish(Event{Type: EventMessageReceived, ConnID: conn.ID(), Session: s, Data: cmd, Time: h.now()})

	if err := h.router.Route(ctx, conn, cmd); err != nil {
		if errors.Is(err, ErrHandlerNotFound) {
			h.logger.WarnContext(ctx, "ignore unknown message type", zap.String("type", cmd.Type))
			return
		}
		h.logger.WarnContext(ctx, "handle message failed",
			zap.String("type", cmd.Type),
			zap.Error(err),
		)
	}
}

// Disconnect 注销连接（幂等）
//
// 只有真正发生移除的那一次会广播离开事件，携带移除前的显示名与移除后的人数。
func (h *Hub) Disconnect(ctx context.Context, conn Conn, reason error) bool {
	s, online, removed := h.registry.Remove(conn.ID())
	conn.Close()
	if !removed {
		return false
	}

	fields := []zap.Field{
		zap.String("conn_id", conn.ID()),
		zap.String("session_id", s.ID),
		zap.Int("online", online),
	}
	if reason != nil {
		fields = append(fields, zap.NamedError("reason", reason))
	}
	h.logger.Info("session left", fields...)
	h.events.Publish(Event{Type: EventSessionLeft, ConnID: conn.ID(), Session: s, Data: reason, Time: h.now()})

	if !h.closed.Load() {
		h.dispatcher.Broadcast(ctx, protocol.Left(s.ID, s.Name, online), conn)
	}
	return true
}

// evict 投递或探测失败时走正常移除流程
func (h *Hub) evict(ctx context.Context, conn Conn, err error) {
	h.Disconnect(ctx, conn, err)
}

// Online 获取在线人数
func (h *Hub) Online() int {
	return h.registry.Count()
}

// Sessions 获取在线会话快照，不保证顺序
func (h *Hub) Sessions() []Session {
	return h.registry.Sessions()
}

// Lookup 查询连接对应的会话
func (h *Hub) Lookup(conn Conn) (Session, bool) {
	return h.registry.Lookup(conn.ID())
}

// Tick 立即执行一轮存活检查
func (h *Hub) Tick(ctx context.Context) int {
	return h.monitor.Tick(ctx)
}

// Broadcast 广播事件
func (h *Hub) Broadcast(ctx context.Context, evt protocol.Event, exclude Conn) int {
	return h.dispatcher.Broadcast(ctx, evt, exclude)
}

// Subscribe 订阅系统事件
func (h *Hub) Subscribe(eventType EventType, handler EventHandler) {
	h.events.Subscribe(eventType, handler)
}

// Use 添加中间件，必须在 Run 之前调用
func (h *Hub) Use(middleware ...MiddlewareFunc) error {
	return h.router.Use(middleware...)
}

// sendPrivate 仅向单个连接发送事件
func (h *Hub) sendPrivate(conn Conn, evt protocol.Event) {
	data, err := protocol.Encode(evt)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("type", string(evt.Type)), zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		h.metrics.IncrementDroppedMessages()
		h.logger.Warn("private send failed",
			zap.String("conn_id", conn.ID()),
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
	}
}

// setupEventHandlers 设置事件处理器
func (h *Hub) setupEventHandlers() {
	h.events.Subscribe(EventSessionJoined, func(e Event) {
		h.metrics.IncrementConnections()
		h.metrics.SetConnectionCount(h.registry.Count())
	})

	h.events.Subscribe(EventSessionLeft, func(e Event) {
		h.metrics.DecrementConnections()
		h.metrics.SetConnectionCount(h.registry.Count())
	})

	h.events.Subscribe(EventMessageReceived, func(e Event) {
		if cmd, ok := e.Data.(protocol.Command); ok {
			h.metrics.IncrementMessageCount(cmd.Kind().String())
		}
	})
}
