// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 聚合查询指标
	intelQueriesTotal   *prometheus.CounterVec
	intelQueryDuration  *prometheus.HistogramVec
	intelResultsMerged  prometheus.Histogram
	sourceErrorsTotal   *prometheus.CounterVec
	sourceTimeoutsTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheCoalesced prometheus.Counter

	// 传输层指标
	publishesTotal     *prometheus.CounterVec
	signatureFailures  prometheus.Counter
	bufferedDrops      prometheus.Counter
	bufferedFlushes    prometheus.Counter
	transportReconnect prometheus.Counter

	// 群体广播指标
	announcesReceived *prometheus.CounterVec

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewCollector 创建指标收集器
func NewCollector(registry *prometheus.Registry, logger *zap.Logger) *Collector {
	factory := promauto.With(registry)

	c := &Collector{
		intelQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "intel_queries_total",
				Help:      "Total number of aggregate intelligence queries",
			},
			[]string{"outcome"}, // hit / miss / coalesced / error
		),
		intelQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "swarmintel",
				Name:      "intel_query_duration_seconds",
				Help:      "Aggregate query latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path"}, // cache / aggregator
		),
		intelResultsMerged: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "swarmintel",
				Name:      "intel_results_merged",
				Help:      "Number of results merged per query",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		sourceErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "source_errors_total",
				Help:      "Per-source error count by kind",
			},
			[]string{"source", "kind"},
		),
		sourceTimeoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "source_timeouts_total",
				Help:      "Per-source timeout count",
			},
			[]string{"source"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "cache_hits_total",
				Help:      "Intel cache hits",
			},
			[]string{"origin"}, // local / swarm
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "cache_misses_total",
				Help:      "Intel cache misses",
			},
			[]string{"reason"}, // absent / expired
		),
		cacheCoalesced: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "cache_coalesced_total",
				Help:      "Queries merged into an in-flight identical query",
			},
		),
		publishesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "publishes_total",
				Help:      "Messages published to the swarm",
			},
			[]string{"status"}, // sent / buffered
		),
		signatureFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "signature_failures_total",
				Help:      "Messages discarded due to HMAC verification failure",
			},
		),
		bufferedDrops: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "buffered_drops_total",
				Help:      "Outgoing messages dropped from the full disconnect buffer",
			},
		),
		bufferedFlushes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "buffered_flushes_total",
				Help:      "Buffered messages flushed after reconnect",
			},
		),
		transportReconnect: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "transport_reconnects_total",
				Help:      "Successful transport reconnections",
			},
		),
		announcesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "swarmintel",
				Name:      "announces_received_total",
				Help:      "Stigmergic announcements received",
			},
			[]string{"action"}, // cached / ignored / stale
		),
		logger: logger.With(zap.String("component", "metrics")),
	}

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordQuery 记录一次聚合查询结果
func (c *Collector) RecordQuery(outcome string, path string, seconds float64) {
	c.intelQueriesTotal.WithLabelValues(outcome).Inc()
	c.intelQueryDuration.WithLabelValues(path).Observe(seconds)
}

// RecordMerged 记录合并结果数量
func (c *Collector) RecordMerged(n int) {
	c.intelResultsMerged.Observe(float64(n))
}

// RecordSourceError 记录情报源错误
func (c *Collector) RecordSourceError(source, kind string) {
	c.sourceErrorsTotal.WithLabelValues(source, kind).Inc()
}

// RecordSourceTimeout 记录情报源超时
func (c *Collector) RecordSourceTimeout(source string) {
	c.sourceTimeoutsTotal.WithLabelValues(source).Inc()
}

// RecordCacheHit 记录缓存命中（origin: local / swarm）
func (c *Collector) RecordCacheHit(origin string) {
	c.cacheHits.WithLabelValues(origin).Inc()
}

// RecordCacheMiss 记录缓存未命中（reason: absent / expired）
func (c *Collector) RecordCacheMiss(reason string) {
	c.cacheMisses.WithLabelValues(reason).Inc()
}

// RecordCoalesced 记录一次请求合并
func (c *Collector) RecordCoalesced() {
	c.cacheCoalesced.Inc()
}

// RecordPublish 记录消息发布（status: sent / buffered）
func (c *Collector) RecordPublish(status string) {
	c.publishesTotal.WithLabelValues(status).Inc()
}

// RecordSignatureFailure 记录签名校验失败
func (c *Collector) RecordSignatureFailure() {
	c.signatureFailures.Inc()
}

// RecordBufferDrop 记录缓冲区溢出丢弃
func (c *Collector) RecordBufferDrop() {
	c.bufferedDrops.Inc()
}

// RecordBufferFlush 记录缓冲消息重放
func (c *Collector) RecordBufferFlush(n int) {
	c.bufferedFlushes.Add(float64(n))
}

// RecordReconnect 记录一次成功重连
func (c *Collector) RecordReconnect() {
	c.transportReconnect.Inc()
}

// RecordAnnounce 记录群体广播处理结果（action: cached / ignored / stale）
func (c *Collector) RecordAnnounce(action string) {
	c.announcesReceived.WithLabelValues(action).Inc()
}
