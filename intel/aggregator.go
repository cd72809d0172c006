package intel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/internal/circuitbreaker"
	"github.com/BaSui01/swarmintel/internal/metrics"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🎯 情报聚合器
// =============================================================================

// registeredSource 注册的源及其可选熔断器
type registeredSource struct {
	src     Source
	breaker circuitbreaker.CircuitBreaker
}

// Aggregator 并发扇出聚合器
// 把一次查询分发给所有注册源，每个源独立计时、独立失败；
// 聚合器返回后不保留任何结果
type Aggregator struct {
	cfg       config.AggregatorConfig
	logger    *zap.Logger
	metrics   *SourceMetrics
	collector *metrics.Collector
	tracer    trace.Tracer

	mu      sync.RWMutex
	sources []registeredSource
}

// NewAggregator 创建聚合器
func NewAggregator(cfg config.AggregatorConfig, logger *zap.Logger) *Aggregator {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &Aggregator{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "aggregator")),
		metrics: NewSourceMetrics(),
		tracer:  otel.Tracer("swarmintel/intel"),
	}
}

// UseCollector 注入 Prometheus 指标收集器（可选）
func (a *Aggregator) UseCollector(c *metrics.Collector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collector = c
}

// AddSource 注册一个情报源
// 能力在注册时检查：重名注册立即失败，而不是等到调用时
func (a *Aggregator) AddSource(src Source) error {
	if src == nil || src.Name() == "" {
		return types.NewError(types.ErrSourceRegistered, "source must have a stable name")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rs := range a.sources {
		if rs.src.Name() == src.Name() {
			return types.NewError(types.ErrSourceRegistered,
				fmt.Sprintf("source %q already registered", src.Name()))
		}
	}

	rs := registeredSource{src: src}
	if a.cfg.BreakerEnabled {
		rs.breaker = circuitbreaker.New(&circuitbreaker.Config{
			Threshold:    a.cfg.BreakerThreshold,
			ResetTimeout: a.cfg.BreakerResetTimeout,
		}, a.logger.With(zap.String("source", src.Name())))
	}

	a.sources = append(a.sources, rs)
	a.logger.Info("source registered", zap.String("source", src.Name()))
	return nil
}

// querySlot 每个源任务独立的结果槽
// 任务先写槽位再关闭 done；超时后未完成的槽位不再被读取，
// 被放弃的任务因此不可能污染合并状态
type querySlot struct {
	results []types.IntelResult
	err     error
	done    chan struct{}
}

// Query 并发查询所有注册源并合并结果
// 部分失败策略：出错、超时或返回非法条目的源贡献零结果并计入指标，
// 绝不中断或拖慢整体查询。仅空 service 名这种调用方错误会返回失败
func (a *Aggregator) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	q := types.Query{Service: service, Version: version}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "aggregator.query", trace.WithAttributes(
		attribute.String("intel.service", service),
		attribute.String("intel.version", version),
	))
	defer span.End()

	a.mu.RLock()
	sources := make([]registeredSource, len(a.sources))
	copy(sources, a.sources)
	collector := a.collector
	a.mu.RUnlock()

	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	// 扇出：每个源一个任务，写入各自的隔离槽位
	slots := make([]querySlot, len(sources))
	for i := range sources {
		slots[i].done = make(chan struct{})
		go func(i int, rs registeredSource) {
			defer close(slots[i].done)
			slots[i].results, slots[i].err = a.queryOne(queryCtx, rs, service, version)
		}(i, sources[i])
	}

	// 汇合：按注册顺序收集，超时的槽位记超时后放弃
	merged := make([]types.IntelResult, 0)
	for i := range sources {
		name := sources[i].src.Name()

		select {
		case <-slots[i].done:
		case <-queryCtx.Done():
			// 截止后再给一次非阻塞机会（任务可能恰好完成）
			select {
			case <-slots[i].done:
			default:
				a.metrics.RecordTimeout(name)
				if collector != nil {
					collector.RecordSourceTimeout(name)
				}
				a.logger.Warn("source timed out", zap.String("source", name))
				continue
			}
		}

		merged = append(merged, a.collectSlot(name, &slots[i], collector)...)
	}

	// 稳定排序：priority 升序，confidence 降序，注册顺序兜底
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Priority != merged[j].Priority {
			return merged[i].Priority < merged[j].Priority
		}
		return merged[i].Confidence > merged[j].Confidence
	})

	merged = dedupe(merged)

	if collector != nil {
		collector.RecordMerged(len(merged))
		collector.RecordQuery("ok", "aggregator", time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.Int("intel.results", len(merged)))

	return merged, nil
}

// collectSlot 消化单个已完成槽位：分类故障、逐条校验结果
func (a *Aggregator) collectSlot(name string, slot *querySlot, collector *metrics.Collector) []types.IntelResult {
	if slot.err != nil {
		if errors.Is(slot.err, context.DeadlineExceeded) {
			a.metrics.RecordTimeout(name)
			if collector != nil {
				collector.RecordSourceTimeout(name)
			}
			a.logger.Warn("source timed out", zap.String("source", name))
			return nil
		}

		kind := types.ErrorKind(slot.err)
		a.metrics.RecordError(name, kind)
		if collector != nil {
			collector.RecordSourceError(name, kind)
		}
		a.logger.Warn("source failed",
			zap.String("source", name),
			zap.String("kind", kind),
			zap.Error(slot.err),
		)
		return nil
	}

	// 逐条校验：非法条目单独丢弃，该源其余合法条目仍然保留
	valid := make([]types.IntelResult, 0, len(slot.results))
	for i := range slot.results {
		if err := slot.results[i].Validate(); err != nil {
			a.metrics.RecordError(name, string(types.ErrInvalidResultType))
			if collector != nil {
				collector.RecordSourceError(name, string(types.ErrInvalidResultType))
			}
			a.logger.Warn("invalid result dropped",
				zap.String("source", name),
				zap.Error(err),
			)
			continue
		}
		valid = append(valid, slot.results[i])
	}
	return valid
}

// queryOne 执行单源查询，带可选熔断
func (a *Aggregator) queryOne(ctx context.Context, rs registeredSource, service, version string) ([]types.IntelResult, error) {
	if rs.breaker == nil {
		return rs.src.Query(ctx, service, version)
	}

	var out []types.IntelResult
	err := rs.breaker.Call(ctx, func() error {
		r, qerr := rs.src.Query(ctx, service, version)
		out = r
		return qerr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen) {
		return nil, types.NewError(types.ErrCircuitOpen, "source circuit open").WithSource(rs.src.Name())
	}
	return out, err
}

// dedupe 去重：同 (source, cve_id, exploit_path) 的条目保留排序后最靠前的一条
// 输入已排序，故保留者必然是优先级最高的版本
func dedupe(results []types.IntelResult) []types.IntelResult {
	if len(results) < 2 {
		return results
	}
	seen := make(map[string]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		key := r.Source + "\x00" + r.CVEID + "\x00" + r.ExploitPath
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Metrics 返回当前源级指标快照（观测面）
func (a *Aggregator) Metrics() MetricsSnapshot {
	return a.metrics.Snapshot()
}

// ResetMetrics 操作员命令：清零源级计数器
func (a *Aggregator) ResetMetrics() {
	a.metrics.Reset()
	a.logger.Info("source metrics reset")
}

// Sources 返回已注册源的名称（按注册顺序）
func (a *Aggregator) Sources() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.sources))
	for i, rs := range a.sources {
		names[i] = rs.src.Name()
	}
	return names
}

// HealthCheck 对实现了 HealthChecker 的源做健康检查扇入
func (a *Aggregator) HealthCheck(ctx context.Context) map[string]error {
	a.mu.RLock()
	sources := make([]registeredSource, len(a.sources))
	copy(sources, a.sources)
	a.mu.RUnlock()

	out := make(map[string]error, len(sources))
	for _, rs := range sources {
		if hc, ok := rs.src.(HealthChecker); ok {
			out[rs.src.Name()] = hc.HealthCheck(ctx)
		}
	}
	return out
}
