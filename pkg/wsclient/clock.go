package wsclient

import "time"

// Timer 可取消的延迟回调
type Timer interface {
	Stop() bool
}

// Clock 调度延迟回调
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock 基于 time 包
type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
