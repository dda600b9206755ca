package ws

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType 事件类型
type EventType string

const (
	// EventSessionJoined 会话加入
	EventSessionJoined EventType = "session.joined"
	// EventSessionLeft 会话离开
	EventSessionLeft EventType = "session.left"
	// EventSessionRenamed 会话改名
	EventSessionRenamed EventType = "session.renamed"
	// EventMessageReceived 收到消息
	EventMessageReceived EventType = "message.received"
	// EventFrameRejected 丢弃的畸形帧
	EventFrameRejected EventType = "frame.rejected"
)

// Event 事件
type Event struct {
	Type    EventType
	ConnID  string
	Session Session
	Data    any
	Time    time.Time
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 事件总线
type EventBus struct {
	handlers      map[EventType][]EventHandler
	mu            sync.RWMutex
	workerCh      chan func()
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        atomic.Bool
	droppedEvents atomic.Int64 // 丢弃的事件计数
}

// NewEventBus 创建事件总线
func NewEventBus(workers, queueSize int) *EventBus {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		eb.wg.Add(1)
		go eb.worker()
	}

	return eb
}

// worker 工作协程
func (eb *EventBus) worker() {
	defer eb.wg.Done()
	for {
		select {
		case task := <-eb.workerCh:
			task()
		case <-eb.stopCh:
			return
		}
	}
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish 发布事件（异步）
func (eb *EventBus) Publish(event Event) {
	if eb.closed.Load() {
		return
	}

	eb.mu.RLock()
	handlers, ok := eb.handlers[event.Type]
	eb.mu.RUnlock()

	if !ok || len(handlers) == 0 {
		return
	}

	for _, handler := range handlers {
		h := handler

		// 加入/离开事件影响在线人数指标，短暂阻塞等待
		if event.Type == EventSessionJoined || event.Type == EventSessionLeft {
			select {
			case eb.workerCh <- func() { h(event) }:
			case <-time.After(100 * time.Millisecond):
				eb.droppedEvents.Add(1)
			}
		} else {
			select {
			case eb.workerCh <- func() { h(event) }:
			default:
				eb.droppedEvents.Add(1)
			}
		}
	}
}

// Close 关闭事件总线
func (eb *EventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}

	close(eb.stopCh)
	eb.wg.Wait()

	// 不关闭 workerCh，避免并发 Publish 导致 panic
}

// DroppedEvents 获取丢弃的事件数量
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}
