package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/errors"
)

type cliEnv struct {
	config string
	dsn    string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	return cliEnv{
		config: filepath.Join(dir, "missing.yaml"),
		dsn:    filepath.Join(dir, "audit.db"),
	}
}

func (e cliEnv) run(t *testing.T, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	t.Helper()
	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", e.config, "--dsn", e.dsn}, args...))
	err = cmd.Execute()
	return stdout, stderr, err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "auditdemo", cmd.Use)

	for _, name := range []string{"demo", "history"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestDemoAndHistory(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("AUDIT_NOTIFY_TRANSPORT", "memory")

	out, logs, err := env.run(t, "--format", "json", "demo", "--operator", "alice")
	require.NoError(t, err)

	var views []ServiceView
	require.NoError(t, json.Unmarshal(out.Bytes(), &views))
	require.Len(t, views, 4)

	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.Name
		assert.Equal(t, "alice", v.ChangedBy, "上下文操作人优先")
		assert.NotEmpty(t, v.CorrelationID)
	}
	assert.Equal(t, []string{"open order", "adjust quantity", "drop line", "ship order"}, names)
	assert.Contains(t, logs.String(), "审计分组已提交")

	opened := views[0].Operations
	require.Len(t, opened, 4)
	var orderID, bookID int64
	for _, op := range opened {
		assert.Equal(t, "Added", op.OperationType)
		require.NotNil(t, op.EntityID)
		switch {
		case op.TableName == "sales_orders":
			orderID = *op.EntityID
		case op.TableName == "order_lines" && op.NewValues["SKU"] == "BOOK-1":
			bookID = *op.EntityID
		}
	}
	require.NotZero(t, orderID)
	require.NotZero(t, bookID)

	byType := func(v ServiceView) map[string]OperationView {
		m := make(map[string]OperationView)
		for _, op := range v.Operations {
			m[op.OperationType] = op
		}
		return m
	}

	adjusted := byType(views[1])
	require.Contains(t, adjusted, "Modified")
	assert.Equal(t, 1.0, adjusted["Modified"].OldValues["Qty"])
	assert.Equal(t, 2.0, adjusted["Modified"].NewValues["Qty"])
	require.Contains(t, adjusted, "Unchanged", "订单行变更牵连订单")
	assert.Equal(t, orderID, *adjusted["Unchanged"].EntityID)

	dropped := byType(views[2])
	require.Contains(t, dropped, "Deleted")
	assert.Equal(t, "PEN-2", dropped["Deleted"].OldValues["SKU"])

	out, _, err = env.run(t, "--format", "json", "history", "--model", "salesOrder", "--id", strconv.FormatInt(orderID, 10))
	require.NoError(t, err)
	var history []ServiceView
	require.NoError(t, json.Unmarshal(out.Bytes(), &history))
	assert.Len(t, history, 4, "直接变更与级联牵连都计入订单历史")

	out, _, err = env.run(t, "--format", "json", "history", "--model", "order_lines", "--id", strconv.FormatInt(bookID, 10))
	require.NoError(t, err)
	history = nil
	require.NoError(t, json.Unmarshal(out.Bytes(), &history))
	require.Len(t, history, 2)
	assert.ElementsMatch(t, []string{"open order", "adjust quantity"}, []string{history[0].Name, history[1].Name})
}

func TestDemo_TextWithMetrics(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "demo", "--metrics")
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "open order by system")
	assert.Contains(t, text, "Modified")
	assert.Contains(t, text, "audit_operations_written_total")
	assert.Contains(t, text, "audit_flush_duration_seconds")
}

func TestHistory_Errors(t *testing.T) {
	env := newCLIEnv(t)

	tests := []struct {
		name string
		args []string
		code errors.ErrorCode
	}{
		{"未知模型", []string{"history", "--model", "invoice", "--id", "1"}, errors.ErrCodeInvalidInput},
		{"记录不存在", []string{"history", "--model", "customer", "--id", "404"}, errors.ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.True(t, errors.IsErrorCode(err, tt.code), "got %v", err)
		})
	}

	_, _, err := env.run(t, "history", "--id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, _, err = env.run(t, "--format", "yaml", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
