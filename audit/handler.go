// Package audit 在工作单元之上自动生成审计记录。
//
// 每次保存前扫描变更集，为新增、修改、删除的可审计记录以及经由被标记关联
// 牵连的记录计算前后值差异，并以同一条 ServiceHistory 作为锚点归组写入
// OperationHistory。主键在主保存之后才确定的记录延后到保存之后刷新，
// 其审计行在同一事务内的第二次保存中写入。
//
// 使用方式：
//
//	h := audit.NewHandler(schema, audit.WithLogger(logger))
//	s := session.New(db, schema, session.WithSaveHook(h))
//	s.Add(audit.NewServiceHistory("create order"))
//	s.Add(order)
//	s.SaveChanges(ctx)
package audit

import (
	"context"
	"strings"
	"time"

	"audittrail/data/orm"
	"audittrail/data/session"
	"audittrail/domain/entity"
	"audittrail/errors"
	"audittrail/logging"
)

const (
	phasePreSave  = "pre_save"
	phasePostSave = "post_save"
)

// Handler 审计处理器，作用域为单个会话，不可并发使用
type Handler struct {
	schema    *orm.Schema
	inspector *Inspector
	logger    logging.Logger
	metrics   *Metrics
	notifier  Notifier
	principal PrincipalProvider
	clock     Clock

	direct  pendingQueue
	related pendingQueue
	anchor  *session.Entry
	prior   *session.Entry

	// 本事务内加入会话的审计行，提交后用于通知
	written []*OperationHistory
	// 处理器自身触发的第二次保存期间不再审计
	secondSave bool
}

// NewHandler 创建处理器
func NewHandler(schema *orm.Schema, opts ...Option) *Handler {
	h := &Handler{
		schema: schema,
		logger: logging.ComponentLogger("audit.handler"),
		clock:  utcNow,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.inspector = &Inspector{
		cascader:  NewCascader(schema),
		principal: h.currentPrincipal,
		clock:     h.clock,
	}
	return h
}

// BeforeSave 实现 session.SaveHook：重新扫描变更集并刷新已就绪的条目
func (h *Handler) BeforeSave(ctx context.Context, s *session.Session) error {
	if h.secondSave {
		return nil
	}
	if err := h.Refresh(ctx, s); err != nil {
		return err
	}
	return h.FlushPreSave(ctx, s)
}

// AfterSave 实现 session.SaveHook：刷新主保存后才就绪的条目
func (h *Handler) AfterSave(ctx context.Context, s *session.Session) error {
	if h.secondSave {
		return nil
	}
	return h.FlushPostSave(ctx, s)
}

// AfterCommit 实现 session.CommitHook：通知已提交的审计分组并开始新的关联作用域
func (h *Handler) AfterCommit(ctx context.Context, _ *session.Session) {
	anchor := h.anchor
	if anchor == nil {
		anchor = h.prior
	}
	written := h.written
	h.Clear()

	if h.notifier == nil || anchor == nil || len(written) == 0 {
		return
	}
	sh, ok := anchor.Entity().(*ServiceHistory)
	if !ok {
		return
	}
	if err := h.notifier.Notify(ctx, Committed{ServiceHistory: sh, Operations: written}); err != nil {
		h.metrics.failed("notify")
		h.logger.Warn(ctx, "审计通知发送失败",
			logging.Int64("service_history_id", sh.ID),
			logging.Error(err))
	}
}

// AfterRollback 实现 session.CommitHook：丢弃所有待刷新条目与锚点
func (h *Handler) AfterRollback(context.Context, *session.Session) {
	h.Clear()
}

// Refresh 重新扫描变更集，替换待刷新队列
func (h *Handler) Refresh(ctx context.Context, s *session.Session) error {
	h.metrics.refreshed()

	result, err := h.inspector.Inspect(ctx, s, h.prior)
	if err != nil {
		h.metrics.failed(strings.ToLower(string(errors.GetErrorCode(err))))
		h.logger.Error(ctx, "扫描变更集失败", logging.Error(err))
		return err
	}

	h.anchor = result.Anchor
	h.direct = newPendingQueue(result.Direct)
	h.related = newPendingQueue(result.Related)

	h.logger.Debug(ctx, "变更集扫描完成",
		logging.Int("direct", len(result.Direct)),
		logging.Int("related", len(result.Related)),
		logging.Bool("anchored", result.Anchor != nil))
	return nil
}

// FlushPreSave 刷新主键已是永久值的条目，审计行与被审计记录在同一次保存中写入
func (h *Handler) FlushPreSave(ctx context.Context, s *session.Session) error {
	return h.flush(ctx, s, phasePreSave)
}

// FlushPostSave 刷新主保存后才就绪的条目并在同一事务内再保存一次；队列为空时不做任何事
func (h *Handler) FlushPostSave(ctx context.Context, s *session.Session) error {
	if h.direct.Len() == 0 && h.related.Len() == 0 {
		return nil
	}
	if err := h.flush(ctx, s, phasePostSave); err != nil {
		return err
	}
	h.prior = h.anchor

	h.secondSave = true
	defer func() { h.secondSave = false }()
	_, err := s.SaveChanges(ctx)
	return err
}

// Clear 丢弃待刷新条目，并遗忘当前与此前的锚点
func (h *Handler) Clear() {
	h.direct.clear()
	h.related.clear()
	h.anchor = nil
	h.prior = nil
	h.written = nil
}

// Pending 待刷新的直接条目与关联条目数量
func (h *Handler) Pending() (direct, related int) {
	return h.direct.Len(), h.related.Len()
}

func (h *Handler) flush(ctx context.Context, s *session.Session, phase string) error {
	defer h.metrics.observeFlush(phase, time.Now())

	hasDirect := h.direct.Len() > 0
	ready := append(h.direct.takeReady(), h.related.takeReady()...)

	for _, a := range ready {
		if h.anchor == nil {
			if hasDirect {
				h.metrics.failed(strings.ToLower(string(errors.ErrCodeMissingServiceHistory)))
				h.logger.Error(ctx, "存在需要审计的变更但缺少服务历史记录",
					logging.String("phase", phase),
					logging.String("model", a.entry.Meta().Name))
				return ErrMissingServiceHistory.WithContext("model", a.entry.Meta().Name)
			}
			// 只有关联条目且没有锚点时不审计
			continue
		}
		if err := h.track(ctx, s, a); err != nil {
			return err
		}
	}

	if len(ready) > 0 {
		h.logger.Debug(ctx, "审计条目已刷新",
			logging.String("phase", phase),
			logging.Int("flushed", len(ready)),
			logging.Int("waiting", h.direct.Len()+h.related.Len()))
	}
	return nil
}

// track 计算差异、回写最后修改信息并把审计行加入会话
func (h *Handler) track(ctx context.Context, s *session.Session, a *AuditEntry) error {
	anchor, ok := h.anchor.Entity().(*ServiceHistory)
	if !ok {
		return ErrMissingServiceHistory
	}

	oldValues, newValues := Diff(a)
	if err := h.stamp(ctx, a); err != nil {
		return err
	}

	oh, err := newOperationHistory(a, anchor, oldValues, newValues)
	if err != nil {
		return err
	}

	if len(newValues) == 0 && a.kind != session.Deleted && a.kind != session.Unchanged {
		h.metrics.suppressed(suppressNoChanges)
		return nil
	}
	if isQueued(s, oh) {
		h.metrics.suppressed(suppressDuplicate)
		h.logger.Warn(ctx, "同一记录的审计行已在待插入队列中",
			logging.String("table", oh.TableName),
			logging.String("entity", oh.EntityName))
		return nil
	}

	if err := s.Add(oh); err != nil {
		return err
	}
	h.written = append(h.written, oh)
	h.metrics.written(oh.OperationType)
	return nil
}

// stamp 在被审计记录上写入最后修改人与时间；会话在保存时检测到这些属性的变化。
// 删除的记录不回写。
func (h *Handler) stamp(ctx context.Context, a *AuditEntry) error {
	state := a.entry.State()
	if state == session.Deleted || state == session.Detached {
		return nil
	}
	if _, ok := a.entry.Entity().(entity.IAuditable); !ok {
		return nil
	}
	return setValues(a.entry, map[string]any{
		"LastChangedBy": h.currentPrincipal(ctx),
		"LastChangedOn": h.clock(),
	})
}

func (h *Handler) currentPrincipal(ctx context.Context) string {
	if op, ok := OperatorFrom(ctx); ok {
		return op
	}
	if h.principal != nil {
		if p := h.principal.CurrentPrincipal(ctx); p != "" {
			return p
		}
	}
	return DefaultPrincipal
}

var (
	_ session.SaveHook   = (*Handler)(nil)
	_ session.CommitHook = (*Handler)(nil)
)
