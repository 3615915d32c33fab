package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/muzz-daily/internal/config"
)

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{Level: "debug", Format: FormatText, Component: "test", Output: &buf})

	Info("hello muzz", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello muzz")
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "key=value")
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{Level: "info", Format: FormatJSON, Component: "json_test", Output: &buf})

	Info("json log", "foo", "bar")

	out := buf.String()
	assert.Contains(t, out, `"msg":"json log"`)
	assert.Contains(t, out, `"component":"json_test"`)
	assert.Contains(t, out, `"foo":"bar"`)
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{Level: "error", Format: FormatText, Output: &buf})

	Info("should not appear")
	Error("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	Init(&Config{Level: "debug", Format: FormatText, Output: &buf})

	With("req_id", "123").Info("processing request")

	assert.Contains(t, buf.String(), "req_id=123")
}

func TestLogger_InitFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Log.Level = "warn"
	cfg.Log.Format = "json"
	cfg.Log.Component = "cfg_test"
	InitFromConfig(cfg)

	// InitFromConfig writes to stdout; swap in a buffer through Init to inspect the result.
	var buf bytes.Buffer
	c := currentConfig()
	c.Output = &buf
	Init(&c)

	Warn("cfg-based log")
	Info("filtered")

	out := buf.String()
	assert.Contains(t, out, `"msg":"cfg-based log"`)
	assert.Contains(t, out, `"component":"cfg_test"`)
	assert.False(t, strings.Contains(out, "filtered"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	scoped := New(Config{Level: "info", Format: FormatText, Output: &buf}).With("request_id", "abc")

	ctx := WithContext(context.Background(), scoped)
	FromContext(ctx, nil).Info("scoped")
	assert.Contains(t, buf.String(), "request_id=abc")

	fallback := Discard()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))
}

func currentConfig() Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
