package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 配置管理器
type Config struct {
	viper *viper.Viper
	mu    sync.RWMutex

	// 配置文件
	configFile  string   // 完整路径，优先于名称搜索
	configName  string   // 不含扩展名
	configType  string   // yaml/json/toml
	configPaths []string // 搜索路径
	optional    bool     // 文件不存在时仅使用默认值与环境变量
	loaded      bool

	// 监控
	autoWatch bool
	watching  bool
	onChange  func()
	onError   func(error)

	defaults       map[string]any
	envPrefix      string
	envKeyReplacer *strings.Replacer
}

// New 创建配置管理器
func New(opts ...Option) *Config {
	c := &Config{
		viper: viper.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 加载配置
//
// 设置为可选时，找不到配置文件不视为错误。
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}

	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
		c.viper.AutomaticEnv()
	}
	if c.envKeyReplacer != nil {
		c.viper.SetEnvKeyReplacer(c.envKeyReplacer)
	}

	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
	} else {
		if c.configName != "" {
			c.viper.SetConfigName(c.configName)
		}
		if c.configType != "" {
			c.viper.SetConfigType(c.configType)
		}
		for _, path := range c.configPaths {
			c.viper.AddConfigPath(path)
		}
	}

	if err := c.viper.ReadInConfig(); err != nil {
		if isNotFound(err) {
			if c.optional {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrConfigNotFound, err)
		}
		return fmt.Errorf("%w: %w", ErrConfigReadFailed, err)
	}
	c.loaded = true

	if c.autoWatch {
		c.startWatch()
	}
	return nil
}

// isNotFound 按名称搜索与指定路径两种情况的文件缺失
func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound) || stderrors.Is(err, fs.ErrNotExist)
}

// Get 泛型获取配置值，类型不匹配时返回零值
func Get[T any](c *Config, key string) T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if v, ok := c.viper.Get(key).(T); ok {
		return v
	}
	var zero T
	return zero
}

func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetDuration(key)
}

func (c *Config) GetStringSlice(key string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetStringSlice(key)
}

// Set 设置配置值，优先级最高
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// IsSet 检查配置键是否存在
func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.IsSet(key)
}

// AllSettings 获取所有配置
func (c *Config) AllSettings() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.AllSettings()
}

// ConfigFileUsed 实际加载的配置文件，未加载时为空
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return ""
	}
	return c.viper.ConfigFileUsed()
}

// Unmarshal 将配置反序列化到结构体
func (c *Config) Unmarshal(rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.Unmarshal(rawVal)
}

// UnmarshalKey 将指定 key 的配置反序列化到结构体
func (c *Config) UnmarshalKey(key string, rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.UnmarshalKey(key, rawVal)
}

// Close 停止监控
func (c *Config) Close() {
	c.StopWatch()
}
