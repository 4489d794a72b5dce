// Package context 拓展上下文功能，把设备标识与追踪信息集成到上下文中，方便在各层传递和记录日志.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type ContextKey string

const (
	DeviceIDKey ContextKey = "deviceID"
)

// WithDeviceID 将现场设备标识存入 context.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, DeviceIDKey, deviceID)
}

// DeviceID 从 context 中取出现场设备标识，没有时返回空串.
func DeviceID(ctx context.Context) string {
	if id, ok := ctx.Value(DeviceIDKey).(string); ok {
		return id
	}

	return ""
}

// TraceID 返回当前 span 的 trace id，没有活动 span 时返回空串.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}

	return sc.TraceID().String()
}

// WithTraceContext 创建带有追踪上下文与设备标识的 logger.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	changed := false

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		lc = lc.
			Str("trace_id", span.SpanContext().TraceID().String()).
			Str("span_id", span.SpanContext().SpanID().String())
		changed = true
	}

	if id := DeviceID(ctx); id != "" {
		lc = lc.Str("device_id", id)
		changed = true
	}

	if !changed {
		return logger
	}

	return lc.Logger()
}
