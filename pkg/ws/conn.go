package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn 传输连接句柄
type Conn interface {
	// ID 连接句柄，进程内唯一
	ID() string
	// Send 发送一帧文本（非阻塞），写满或已关闭时返回错误
	Send(data []byte) error
	// Ping 发送存活探测（有界时间）
	Ping() error
	// Open 传输是否处于打开状态
	Open() bool
	// Close 关闭传输（幂等）
	Close()
}

// Client 基于 gorilla/websocket 的服务端连接
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	// 发送队列
	send chan []byte

	// 生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	writeDone chan struct{} // 标记 writePump 已退出

	// 配置
	config *ClientConfig
}

// ClientConfig 客户端配置
type ClientConfig struct {
	SendQueueSize  int
	WriteWait      time.Duration
	MaxMessageSize int64
}

// newClient 创建客户端
func newClient(conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)

	config := &ClientConfig{
		SendQueueSize:  hub.config.SendQueueSize,
		WriteWait:      hub.config.WriteWait,
		MaxMessageSize: hub.config.MaxMessageSize,
	}

	return &Client{
		id:        uuid.NewString(),
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, config.SendQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
		writeDone: make(chan struct{}),
	}
}

// ID 连接句柄
func (c *Client) ID() string {
	return c.id
}

// run 运行客户端，读循环退出后从 Hub 注销
func (c *Client) run() {
	go c.writePump()

	err := c.readPump()
	c.hub.Disconnect(c.ctx, c, err)

	<-c.writeDone
}

// readPump 读取消息
//
// 同一连接的帧严格按到达顺序处理。
func (c *Client) readPump() error {
	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.hub.registry.MarkAlive(c.id, c.hub.now())
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.metrics.IncrementReadErrors()
				c.hub.logger.Warn("websocket read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return err
		}
		if msgType != websocket.TextMessage {
			c.hub.metrics.IncrementInvalidMessages()
			continue
		}
		c.hub.Handle(c.ctx, c, data)
	}
}

// writePump 写入消息
func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
		close(c.writeDone)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-c.send:
			if err := c.writeMessage(message); err != nil {
				c.hub.metrics.IncrementWriteErrors()
				c.cancel()
				return
			}
		}
	}
}

// writeMessage 写入消息
func (c *Client) writeMessage(message []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Send 发送字节消息（非阻塞）
func (c *Client) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// Ping 发送心跳，WriteControl 可与写协程并发调用
func (c *Client) Ping() error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait))
}

// Open 是否打开
func (c *Client) Open() bool {
	return !c.closed.Load()
}

// Close 关闭客户端
//
// 发送通道不关闭，写协程通过 ctx 退出，避免并发 Send 时 panic。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()

		// 尽力通知对端，对端据此决定是否重连
		deadline := time.Now().Add(c.config.WriteWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)

		// 关闭连接（会触发 readPump 退出）
		c.conn.Close()
	})
}

// RemoteAddr 获取远程地址
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
