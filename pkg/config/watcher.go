package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// startWatch 调用方持有 mu
func (c *Config) startWatch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		c.mu.RUnlock()

		if !watching || onChange == nil {
			return
		}
		onChange()
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StartWatch 监控配置文件变更，重复调用无副作用
//
// 未加载到配置文件时返回 ErrConfigNotFound。
func (c *Config) StartWatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watching {
		return nil
	}
	if !c.loaded {
		return ErrConfigNotFound
	}
	c.startWatch()
	return nil
}

// StopWatch 停止监控
//
// viper 不提供停止底层 watcher 的方法，这里只让回调失效。
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// IsWatching 是否正在监控
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}

// reportError 优先交给 onError 回调，否则输出到 stderr
func (c *Config) reportError(err error) {
	c.mu.RLock()
	onError := c.onError
	c.mu.RUnlock()

	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}
