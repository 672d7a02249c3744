package obs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Level(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "warn", App: "herald", Env: "test", Ver: "1"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = NewLogger(LogConfig{Level: "bogus"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLogger_EncodingOverride(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "info", Pretty: true, Encoding: "json"})
	require.NoError(t, err)

	_, err = NewLogger(LogConfig{Level: "info", Encoding: "xml"})
	require.NoError(t, err, "unknown encodings keep the preset")
}

func TestLogConfig_zapConfig(t *testing.T) {
	cases := map[string]struct {
		in       LogConfig
		level    zapcore.Level
		encoding string
	}{
		"production":       {LogConfig{Level: "debug"}, zapcore.DebugLevel, "json"},
		"pretty":           {LogConfig{Level: "warn", Pretty: true}, zapcore.WarnLevel, "console"},
		"pretty as json":   {LogConfig{Pretty: true, Encoding: "json"}, zapcore.InfoLevel, "json"},
		"unknown encoding": {LogConfig{Level: "error", Encoding: "xml"}, zapcore.ErrorLevel, "json"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := tc.in.zapConfig()
			assert.Equal(t, tc.level, cfg.Level.Level())
			assert.Equal(t, tc.encoding, cfg.Encoding)
			assert.Equal(t, "ts", cfg.EncoderConfig.TimeKey)
		})
	}
}

func TestLogConfig_identity(t *testing.T) {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range (LogConfig{App: "herald", Ver: "1.2.0"}).identity() {
		f.AddTo(enc)
	}
	assert.Equal(t, map[string]any{"service": "herald", "version": "1.2.0"}, enc.Fields)
}

func TestTraceFields(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.Len(t, TraceFields(ctx), 3)
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	WithTrace(context.Background(), base).Info("plain")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	WithTrace(ctx, base).Info("traced")
	span.End()

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[1].ContextMap()["trace_id"])
	assert.Nil(t, WithTrace(ctx, nil))
}
