package ws

import (
	"strings"
	"sync"
	"time"
)

// entry 注册表条目
type entry struct {
	conn     Conn
	session  Session
	awaiting bool // 已发送探测，等待 pong
}

// Registry 连接注册表，在线成员与在线人数的唯一来源
//
// 只维护状态，不做网络 I/O 和广播。
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry // connID -> entry
	maxConns int               // 最大连接数，0 表示不限制
}

// NewRegistry 创建注册表
func NewRegistry(maxConns int) *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		maxConns: maxConns,
	}
}

// Insert 添加连接
//
// onInserted 在持锁状态下以插入后的人数调用，期间任何广播都无法快照到该连接，
// 调用方可借此保证私有握手先于广播入队。回调只能做非阻塞操作。
func (r *Registry) Insert(conn Conn, s Session, onInserted func(online int)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	if r.maxConns > 0 && len(r.entries) >= r.maxConns {
		return ErrTooManyConnections
	}

	if s.LastAck.IsZero() {
		s.LastAck = time.Now()
	}
	r.entries[conn.ID()] = &entry{conn: conn, session: s}

	if onInserted != nil {
		onInserted(len(r.entries))
	}
	return nil
}

// Lookup 查询会话
func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[connID]
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// UpdateDisplayName 修改显示名，返回旧名
func (r *Registry) UpdateDisplayName(connID, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return "", ErrSessionNotFound
	}
	old := e.session.Name
	e.session.Name = name
	return old, nil
}

// Remove 移除连接（幂等）
//
// 返回移除前的会话、移除后的人数，以及本次是否真正发生了移除。
// 同一连接的并发移除只有一个会返回 true。
func (r *Registry) Remove(connID string) (Session, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return Session{}, len(r.entries), false
	}
	delete(r.entries, connID)
	return e.session, len(r.entries), true
}

// Count 获取在线人数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot 获取当前连接快照
func (r *Registry) Snapshot() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]Conn, 0, len(r.entries))
	for _, e := range r.entries {
		conns = append(conns, e.conn)
	}
	return conns
}

// Sessions 获取当前会话快照
func (r *Registry) Sessions() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]Session, 0, len(r.entries))
	for _, e := range r.entries {
		sessions = append(sessions, e.session)
	}
	return sessions
}

// MarkAlive 收到 pong，连接回到存活状态
func (r *Registry) MarkAlive(connID string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return false
	}
	e.awaiting = false
	e.session.LastAck = at
	return true
}

// Sweep 一轮存活检查
//
// 上一轮仍在等待 pong 的连接归入 dead，其余连接被标记为等待并归入 probe。
func (r *Registry) Sweep() (dead, probe []Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.awaiting {
			dead = append(dead, e.conn)
			continue
		}
		e.awaiting = true
		probe = append(probe, e.conn)
	}
	return dead, probe
}

// normalizeName 规范化显示名
func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
