package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/logging"
	msg "audittrail/messaging"
)

type countingHandler struct {
	count int
	err   error
}

func (h *countingHandler) Handle(context.Context, msg.IMessage) error {
	h.count++
	return h.err
}
func (h *countingHandler) Type() string { return "countingHandler" }

func TestTransport_PublishDispatchesSynchronously(t *testing.T) {
	ctx := context.Background()
	tpt := NewTransport(WithLogger(logging.NewNoopLogger()))
	require.NoError(t, tpt.Start(ctx))
	defer tpt.Close()

	exact := &countingHandler{}
	all := &countingHandler{}
	other := &countingHandler{}
	require.NoError(t, tpt.Subscribe("audit.test", exact))
	require.NoError(t, tpt.Subscribe(msg.WildcardType, all))
	require.NoError(t, tpt.Subscribe("audit.other", other))

	require.NoError(t, tpt.Publish(ctx, msg.NewMessage("m1", "audit.test", nil)))
	assert.Equal(t, 1, exact.count)
	assert.Equal(t, 1, all.count)
	assert.Zero(t, other.count)

	stats := tpt.Stats()
	assert.True(t, stats.Running)
	assert.Equal(t, 3, stats.HandlerCount)
	assert.ElementsMatch(t, []string{"audit.test", "*", "audit.other"}, stats.MessageTypes)
	assert.Equal(t, int64(1), stats.Published)
}

func TestTransport_HandlerErrorIsNotPropagated(t *testing.T) {
	ctx := context.Background()
	tpt := NewTransport(WithLogger(logging.NewNoopLogger()))
	require.NoError(t, tpt.Start(ctx))

	failing := &countingHandler{err: errors.New("boom")}
	after := &countingHandler{}
	require.NoError(t, tpt.Subscribe("audit.test", failing))
	require.NoError(t, tpt.Subscribe("audit.test", after))

	require.NoError(t, tpt.Publish(ctx, msg.NewMessage("m1", "audit.test", nil)))
	assert.Equal(t, 1, after.count, "后续处理器仍然执行")
	assert.Equal(t, int64(1), tpt.Stats().Failed)
}

func TestTransport_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tpt := NewTransport()

	tests := []struct {
		name    string
		prepare func()
		wantErr bool
	}{
		{"未启动时发布失败", func() {}, true},
		{"启动后发布成功", func() { require.NoError(t, tpt.Start(ctx)) }, false},
		{"关闭后发布失败", func() { require.NoError(t, tpt.Close()) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepare()
			err := tpt.Publish(ctx, msg.NewMessage("m", "t", nil))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	require.NoError(t, tpt.Start(ctx))
	assert.Error(t, tpt.Start(ctx), "重复启动应返回错误")
	assert.Error(t, tpt.Subscribe("t", nil))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, tpt.Publish(canceled, msg.NewMessage("m", "t", nil)), context.Canceled)
}
