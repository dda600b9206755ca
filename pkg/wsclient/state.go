package wsclient

import "time"

// State 客户端连接状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status 界面展示用的连接状态
type Status string

const (
	StatusConnected    Status = "connected"
	StatusConnecting   Status = "connecting"
	StatusDisconnected Status = "disconnected"
)

// Status 由连接状态推导界面状态
func (s State) Status() Status {
	switch s {
	case StateOpen:
		return StatusConnected
	case StateConnecting:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// Machine 重连状态机
//
// 只包含纯状态转换，不做 I/O，也不持有定时器。非并发安全，由 Controller 加锁使用。
type Machine struct {
	policy  Policy
	state   State
	attempt int
	gaveUp  bool
}

// NewMachine 创建状态机
func NewMachine(policy Policy) *Machine {
	policy.normalize()
	return &Machine{policy: policy}
}

// State 当前状态
func (m *Machine) State() State {
	return m.state
}

// Attempt 已安排的自动重试次数
func (m *Machine) Attempt() int {
	return m.attempt
}

// GaveUp 是否已耗尽自动重试
func (m *Machine) GaveUp() bool {
	return m.gaveUp
}

// Policy 当前策略
func (m *Machine) Policy() Policy {
	return m.policy
}

// Begin Idle/Closed → Connecting
//
// 已有连接尝试或连接已打开时返回 false，保证同一时刻至多一个传输。
func (m *Machine) Begin() bool {
	if m.state == StateConnecting || m.state == StateOpen {
		return false
	}
	m.state = StateConnecting
	return true
}

// Opened Connecting → Open，重置重试计数
func (m *Machine) Opened() bool {
	if m.state != StateConnecting {
		return false
	}
	m.state = StateOpen
	m.attempt = 0
	m.gaveUp = false
	return true
}

// Closed Connecting/Open → Closed
//
// 非正常关闭且重试次数未达上限时返回退避时间与 true，并递增计数；
// 达到上限后进入放弃状态，直到 Reset。
func (m *Machine) Closed(normal bool) (time.Duration, bool) {
	m.state = StateClosed
	if normal || m.gaveUp {
		return 0, false
	}
	if m.attempt >= m.policy.MaxAttempts {
		m.gaveUp = true
		return 0, false
	}
	delay := m.policy.Delay(m.attempt)
	m.attempt++
	return delay, true
}

// Reset 手动重连：清零计数并解除放弃状态
func (m *Machine) Reset() {
	m.attempt = 0
	m.gaveUp = false
}
