package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Level
		wantErr bool
	}{
		{name: "调试", input: "debug", want: DebugLevel},
		{name: "大小写不敏感", input: "WARN", want: WarnLevel},
		{name: "空串默认Info", input: "", want: InfoLevel},
		{name: "未知级别", input: "verbose", want: InfoLevel, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStdLogger_LevelFilterAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStdLoggerWithWriter(&buf, "[audit]", WarnLevel)
	ctx := context.Background()

	logger.Info(ctx, "不应输出")
	logger.WithFields(Component("handler")).Warn(ctx, "重复的操作历史", String("table", "orders"), Error(errors.New("boom")))

	out := buf.String()
	assert.NotContains(t, out, "不应输出")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "[audit] 重复的操作历史")
	assert.Contains(t, out, "component=handler")
	assert.Contains(t, out, "table=orders")
	assert.Contains(t, out, "error=boom")
}

func TestStdLogger_WithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewStdLoggerWithWriter(&buf, "", DebugLevel)
	_ = parent.WithFields(String("child", "yes"))

	parent.Debug(context.Background(), "父日志")
	assert.NotContains(t, buf.String(), "child=yes")
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.DebugLevel)

	logger := NewLogrusLogger(l).WithFields(Component("session"))
	logger.Info(context.Background(), "保存完成", Int("rows", 3), Error(errors.New("minor")))

	line := strings.TrimSpace(buf.String())
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &payload))
	assert.Equal(t, "保存完成", payload["msg"])
	assert.Equal(t, "session", payload["component"])
	assert.Equal(t, float64(3), payload["rows"])
	assert.Equal(t, "minor", payload["error"])
	assert.Equal(t, logrus.WarnLevel, ToLogrusLevel(WarnLevel))
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	noop := NewNoopLogger()
	SetLogger(noop)
	assert.Same(t, noop, GetLogger())

	SetLogger(nil)
	assert.IsType(t, &NoopLogger{}, GetLogger())
}
