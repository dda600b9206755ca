package ws

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Session 会话，每个存活连接对应一个
type Session struct {
	ID      string    // 会话 ID，分配后不可变
	Name    string    // 显示名，仅由所属连接的改名请求修改
	LastAck time.Time // 最近一次存活确认
}

// Allocator 身份分配器
//
// 进程生命周期内单调递增，ID 不会重复。
type Allocator struct {
	next atomic.Uint64
}

// NewAllocator 创建分配器
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate 分配会话 ID 与默认显示名
func (a *Allocator) Allocate() (id, name string) {
	n := strconv.FormatUint(a.next.Add(1), 10)
	return "user_" + n, "User " + n
}
