package audit

// pendingQueue 待刷新的审计条目。
//
// 每次刷新把就绪条目整体取出，未就绪的组成新队列替换旧队列，迭代期间不修改原切片。
type pendingQueue struct {
	items []*AuditEntry
}

func newPendingQueue(items []*AuditEntry) pendingQueue {
	return pendingQueue{items: items}
}

func (q *pendingQueue) Len() int { return len(q.items) }

// takeReady 取出全部就绪条目，保留其余条目的原有顺序
func (q *pendingQueue) takeReady() []*AuditEntry {
	var ready, waiting []*AuditEntry
	for _, e := range q.items {
		if e.ReadyToFlush() {
			ready = append(ready, e)
		} else {
			waiting = append(waiting, e)
		}
	}
	q.items = waiting
	return ready
}

func (q *pendingQueue) clear() { q.items = nil }
