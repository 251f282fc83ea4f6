package redisstreams

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/logging"
	"audittrail/messaging"
)

func newPublisher(t *testing.T, cfg Config) (*Publisher, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg.Client = rdb
	cfg.Logger = logging.NewNoopLogger()
	p, err := NewPublisher(cfg)
	require.NoError(t, err)
	return p, mr
}

func TestPublisher_PublishAndRead(t *testing.T) {
	ctx := context.Background()
	p, mr := newPublisher(t, Config{})

	ts := time.Unix(0, 1700000000000000000)
	msg := &messaging.Message{
		ID:        "msg-1",
		Type:      "audit.service_history.committed",
		Timestamp: ts,
		Payload:   map[string]any{"service_history_id": 42},
		Metadata:  map[string]any{"correlation_id": "cor-123"},
	}
	require.NoError(t, p.Publish(ctx, msg))

	assert.True(t, mr.Exists("audit:audit.service_history.committed"))

	got, err := p.Read(ctx, msg.Type, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "msg-1", got[0].GetID())
	assert.Equal(t, msg.Type, got[0].GetType())
	assert.Equal(t, ts.UnixNano(), got[0].GetTimestamp().UnixNano())
	assert.Equal(t, "cor-123", got[0].GetMetadata()["correlation_id"])

	var payload struct {
		ServiceHistoryID int64 `json:"service_history_id"`
	}
	require.NoError(t, messaging.DecodePayload(got[0], &payload))
	assert.Equal(t, int64(42), payload.ServiceHistoryID)

	assert.Equal(t, int64(1), p.Stats().Published)
}

func TestPublisher_MaxLenTrimsStream(t *testing.T) {
	ctx := context.Background()
	p, _ := newPublisher(t, Config{StreamPrefix: "trail:", MaxLen: 2})

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(ctx, messaging.NewMessage(id, "t", nil)))
	}

	got, err := p.Read(ctx, "t", "-", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].GetID())
	assert.Equal(t, "c", got[1].GetID())
}

func TestPublisher_PublishFailsWhenServerDown(t *testing.T) {
	ctx := context.Background()
	p, mr := newPublisher(t, Config{})
	mr.Close()

	assert.Error(t, p.Publish(ctx, messaging.NewMessage("m", "t", nil)))
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestNewPublisher_RequiresAddrOrClient(t *testing.T) {
	_, err := NewPublisher(Config{})
	assert.Error(t, err)
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
		wantID string
		wantTS int64
	}{
		{
			name: "字符串时间戳",
			values: map[string]any{
				"id": "msg-2", "type": "t", "timestamp": "1700000000000000000",
				"payload": "{}", "metadata": "{}",
			},
			wantID: "msg-2",
			wantTS: 1700000000000000000,
		},
		{
			name: "缺少 ID 时使用条目 ID",
			values: map[string]any{
				"type": "t", "timestamp": int64(5), "payload": "null",
			},
			wantID: "2-0",
			wantTS: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := decodeMessage(redis.XMessage{ID: "2-0", Values: tt.values})
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, decoded.GetID())
			assert.Equal(t, tt.wantTS, decoded.GetTimestamp().UnixNano())
			assert.IsType(t, json.RawMessage{}, decoded.GetPayload())
		})
	}

	_, err := decodeMessage(redis.XMessage{ID: "3-0", Values: map[string]any{"metadata": "{"}})
	assert.Error(t, err)
}
