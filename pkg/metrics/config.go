package metrics

import "github.com/prometheus/client_golang/prometheus"

// Config 监控配置
type Config struct {
	Namespace   string                // 指标命名空间（默认 relay）
	Subsystem   string                // 指标子系统
	ConstLabels prometheus.Labels     // 常量标签
	Buckets     []float64             // 广播耗时直方图分桶
	Registry    prometheus.Registerer // 注册器（默认 prometheus.DefaultRegisterer）
}

// Option 配置选项
type Option func(*Config)

// WithNamespace 设置命名空间
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem 设置子系统
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels 设置常量标签
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets 设置直方图分桶
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry 设置注册器
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "relay",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		Registry:  prometheus.DefaultRegisterer,
	}
}

func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.DefBuckets
	}
	return cfg
}
