package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewTracerProvider 创建 TracerProvider 并注册为全局实例
//
// 调用方负责在退出前调用返回值的 Shutdown 以导出剩余 Span。
func NewTracerProvider(ctx context.Context, cfg *Config) (*trace.TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exporterType := cfg.ExporterType
	if !cfg.Enabled {
		exporterType = ExporterNoop
	}
	exporter, err := newExporter(ctx, &Config{
		ExporterType:     exporterType,
		ExporterEndpoint: cfg.ExporterEndpoint,
		ExporterHeaders:  cfg.ExporterHeaders,
		Insecure:         cfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithSampler(newSampler(cfg)),
		trace.WithSpanProcessor(trace.NewBatchSpanProcessor(
			exporter,
			trace.WithBatchTimeout(cfg.BatchTimeout),
			trace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			trace.WithMaxQueueSize(cfg.MaxQueueSize),
		)),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// newResource 服务信息、自定义属性与 OTEL_RESOURCE_ATTRIBUTES
func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	attrs = append(attrs, parseResourceAttributes(os.Getenv("OTEL_RESOURCE_ATTRIBUTES"))...)

	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}

// parseResourceAttributes 格式: key1=value1,key2=value2
func parseResourceAttributes(s string) []attribute.KeyValue {
	if s == "" {
		return nil
	}
	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		attrs = append(attrs, attribute.String(strings.TrimSpace(k), strings.TrimSpace(v)))
	}
	return attrs
}

// newSampler OTEL_TRACES_SAMPLER 优先于配置
func newSampler(cfg *Config) trace.Sampler {
	if s := os.Getenv("OTEL_TRACES_SAMPLER"); s != "" {
		return samplerFromEnv(s, os.Getenv("OTEL_TRACES_SAMPLER_ARG"))
	}

	switch cfg.SamplingType {
	case "always":
		return trace.AlwaysSample()
	case "never":
		return trace.NeverSample()
	case "ratio":
		return trace.TraceIDRatioBased(cfg.SamplingRate)
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(cfg.SamplingRate))
	}
}

func samplerFromEnv(name, arg string) trace.Sampler {
	ratio := 1.0
	if r, err := strconv.ParseFloat(arg, 64); err == nil && r >= 0 && r <= 1 {
		ratio = r
	}

	switch name {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(ratio)
	case "parentbased_always_off":
		return trace.ParentBased(trace.NeverSample())
	case "parentbased_traceidratio":
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}
