package intel

import "sync"

// =============================================================================
// 📊 情报源指标
// =============================================================================

// SourceMetrics 每个聚合器实例持有一份的源级故障计数器
// 只由聚合循环写入，观测端读取快照，操作员可显式清零；从不持久化
type SourceMetrics struct {
	mu       sync.Mutex
	timeouts map[string]int
	errors   map[string]map[string]int
}

// NewSourceMetrics 创建空计数器
func NewSourceMetrics() *SourceMetrics {
	return &SourceMetrics{
		timeouts: make(map[string]int),
		errors:   make(map[string]map[string]int),
	}
}

// RecordTimeout 记录一次源超时
func (m *SourceMetrics) RecordTimeout(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[source]++
}

// RecordError 记录一次源错误（按错误种类分桶）
func (m *SourceMetrics) RecordError(source, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors[source] == nil {
		m.errors[source] = make(map[string]int)
	}
	m.errors[source][kind]++
}

// Reset 清零所有计数器
func (m *SourceMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts = make(map[string]int)
	m.errors = make(map[string]map[string]int)
}

// MetricsSnapshot 观测端读取的指标快照
type MetricsSnapshot struct {
	Timeouts      map[string]int            `json:"timeouts"`
	Errors        map[string]map[string]int `json:"errors"`
	TotalTimeouts int                       `json:"total_timeouts"`
	TotalErrors   int                       `json:"total_errors"`
}

// Snapshot 返回当前计数器的深拷贝
func (m *SourceMetrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Timeouts: make(map[string]int, len(m.timeouts)),
		Errors:   make(map[string]map[string]int, len(m.errors)),
	}
	for src, n := range m.timeouts {
		snap.Timeouts[src] = n
		snap.TotalTimeouts += n
	}
	for src, kinds := range m.errors {
		cp := make(map[string]int, len(kinds))
		for kind, n := range kinds {
			cp[kind] = n
			snap.TotalErrors += n
		}
		snap.Errors[src] = cp
	}
	return snap
}
