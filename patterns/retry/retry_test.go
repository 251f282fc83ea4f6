package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDo(t *testing.T) {
	errTemporary := errors.New("temporary")
	errPermanent := errors.New("permanent")

	tests := []struct {
		name      string
		cfg       Config
		failUntil int // 前 failUntil 次返回 errTemporary
		fail      error
		wantCalls int
		wantErr   error
	}{
		{"首次成功", fastConfig(3), 0, nil, 1, nil},
		{"重试后成功", fastConfig(3), 2, nil, 3, nil},
		{"次数用尽", fastConfig(3), 10, nil, 3, errTemporary},
		{"不重试", fastConfig(0), 10, nil, 1, errTemporary},
		{
			"不可重试的错误立即返回",
			Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Retryable: func(err error) bool { return !errors.Is(err, errPermanent) }},
			0, errPermanent, 1, errPermanent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), func(_ context.Context, attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				if tt.fail != nil {
					return tt.fail
				}
				if attempt <= tt.failUntil {
					return errTemporary
				}
				return nil
			}, tt.cfg)

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Hour}

	calls := 0
	err := Do(ctx, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("broker down")
	}, cfg)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "退避等待期间取消")
}

func TestConfig_Delay(t *testing.T) {
	cfg := Config{InitialDelay: 10 * time.Millisecond, BackoffFactor: 2, MaxDelay: 50 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 20*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 40*time.Millisecond, cfg.Delay(3))
	assert.Equal(t, 50*time.Millisecond, cfg.Delay(4), "不超过上限")

	flat := Config{InitialDelay: 5 * time.Millisecond}
	assert.Equal(t, 5*time.Millisecond, flat.Delay(3), "倍数小于 1 视为固定间隔")
}
