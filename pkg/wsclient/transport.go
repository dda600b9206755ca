package wsclient

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport 客户端传输
type Transport interface {
	// Read 阻塞读取下一帧文本
	Read() ([]byte, error)
	// Write 写入一帧文本（有界时间）
	Write(data []byte) error
	// Close 以正常关闭码关闭
	Close() error
}

// DialFunc 建立传输，ctx 到期时必须放弃
type DialFunc func(ctx context.Context, url string) (Transport, error)

// Dialer 基于 gorilla/websocket 的拨号器
type Dialer struct {
	Header       http.Header
	Subprotocols []string
	WriteWait    time.Duration
}

// Dial 实现 DialFunc
func (d *Dialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{
		Proxy:        http.ProxyFromEnvironment,
		Subprotocols: d.Subprotocols,
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	writeWait := d.WriteWait
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &wsTransport{conn: conn, writeWait: writeWait}, nil
}

// wsTransport gorilla 连接适配
type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (t *wsTransport) Read() ([]byte, error) {
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) Write(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.writeWait))
		err = t.conn.Close()
	})
	return err
}

// IsNormalClosure 对端是否以正常关闭码结束连接
func IsNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, ErrClosedByUser)
}
