package wsclient

import (
	"math"
	"math/rand/v2"
	"time"
)

// Policy 重连策略
type Policy struct {
	BaseDelay      time.Duration // 初始退避（默认 1s）
	MaxDelay       time.Duration // 最大退避（默认 30s）
	MaxAttempts    int           // 最大自动重试次数（默认 3）
	ConnectTimeout time.Duration // 单次建连超时（默认 5s）
	Jitter         float64       // 抖动比例，0 表示不抖动
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		MaxAttempts:    3,
		ConnectTimeout: 5 * time.Second,
	}
}

// Delay 计算第 attempt 次重试前的退避时间：min(base * 2^attempt, max)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay += delay * p.Jitter * (rand.Float64()*2 - 1)
		if delay > float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
		}
	}
	d := time.Duration(delay)
	if d < 0 {
		d = 0
	}
	return d
}

// normalize 填充零值字段为默认值
func (p *Policy) normalize() {
	def := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = def.ConnectTimeout
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
}
