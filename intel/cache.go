package intel

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/internal/metrics"
	"github.com/BaSui01/swarmintel/transport"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 💾 情报缓存 / 请求合并层
// =============================================================================

// Entry 缓存条目
// 缓存层是 IntelResult 列表唯一的长期持有者；过期在读取时惰性判定
type Entry struct {
	Key         string              `json:"key"`
	Results     []types.IntelResult `json:"results"`
	PublishedAt time.Time           `json:"published_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// Cache 键值后端缓存 + 请求合并
// 合并不变量：同一规范化键的 N 个并发调用方产生恰好一次上游扇出，
// N 个调用方共享同一份结果
type Cache struct {
	agg       *Aggregator
	store     *transport.Client
	cfg       config.CacheConfig
	logger    *zap.Logger
	collector *metrics.Collector
	group     singleflight.Group
	tracer    trace.Tracer
}

// NewCache 创建缓存层，包裹一个聚合器实例
func NewCache(agg *Aggregator, store *transport.Client, cfg config.CacheConfig, logger *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "swarmintel:intel:"
	}
	return &Cache{
		agg:    agg,
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "intel-cache")),
		tracer: otel.Tracer("swarmintel/intel"),
	}
}

// UseCollector 注入 Prometheus 指标收集器（可选）
func (c *Cache) UseCollector(m *metrics.Collector) {
	c.collector = m
}

// Query 缓存优先查询
// 命中未过期条目直接返回（零源调用）；未命中时合并到同键在途查询，
// 或发起一次新的聚合扇出并以 TTL 写回
func (c *Cache) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	q := types.Query{Service: service, Version: version}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	key := q.Key()

	ctx, span := c.tracer.Start(ctx, "cache.query", trace.WithAttributes(
		attribute.String("intel.key", key),
	))
	defer span.End()

	start := time.Now()

	if entry, ok := c.lookup(ctx, key); ok {
		if c.collector != nil {
			c.collector.RecordCacheHit("local")
			c.collector.RecordQuery("hit", "cache", time.Since(start).Seconds())
		}
		span.SetAttributes(attribute.Bool("intel.cache_hit", true))
		return entry.Results, nil
	}

	// 请求合并：同键并发查询共享一次上游调用
	// singleflight 内部互斥保证 check-or-register 无竞态
	v, err, shared := c.group.Do(key, func() (any, error) {
		results, qerr := c.agg.Query(ctx, service, version)
		if qerr != nil {
			return nil, qerr
		}
		c.storeEntry(ctx, key, results, time.Now().UTC())
		return results, nil
	})
	if err != nil {
		if c.collector != nil {
			c.collector.RecordQuery("error", "cache", time.Since(start).Seconds())
		}
		return nil, err
	}

	if shared && c.collector != nil {
		c.collector.RecordCoalesced()
	}
	if c.collector != nil {
		c.collector.RecordQuery("miss", "cache", time.Since(start).Seconds())
	}

	return v.([]types.IntelResult), nil
}

// lookup 读取并惰性淘汰
func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool) {
	var entry Entry
	err := c.store.GetJSON(ctx, c.cfg.KeyPrefix+key, &entry)
	if err != nil {
		if !errors.Is(err, transport.ErrNotFound) {
			c.logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
		}
		if c.collector != nil {
			c.collector.RecordCacheMiss("absent")
		}
		return nil, false
	}

	// 惰性过期：now > expires_at 视为未命中并删除
	if time.Now().After(entry.ExpiresAt) {
		_ = c.store.Delete(ctx, c.cfg.KeyPrefix+key)
		if c.collector != nil {
			c.collector.RecordCacheMiss("expired")
		}
		return nil, false
	}

	return &entry, true
}

// storeEntry 写入本地查询结果
func (c *Cache) storeEntry(ctx context.Context, key string, results []types.IntelResult, publishedAt time.Time) {
	entry := Entry{
		Key:         key,
		Results:     results,
		PublishedAt: publishedAt,
		ExpiresAt:   time.Now().UTC().Add(c.cfg.TTL),
	}
	if err := c.store.SetJSON(ctx, c.cfg.KeyPrefix+key, entry, c.cfg.TTL); err != nil {
		// 缓存写失败不影响查询结果，下次查询重新扇出
		c.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// StoreAnnouncement 写入来自群体广播的远端结果
// 新鲜度规则：仅当广播的 published_at 严格新于现有条目时才覆盖；
// 相同时间戳保留现有条目（防止陈旧重放挤掉本地更新数据）
func (c *Cache) StoreAnnouncement(ctx context.Context, key string, results []types.IntelResult, publishedAt time.Time, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	if existing, ok := c.lookup(ctx, key); ok {
		if !publishedAt.After(existing.PublishedAt) {
			if c.collector != nil {
				c.collector.RecordAnnounce("stale")
			}
			return false, nil
		}
	}

	entry := Entry{
		Key:         key,
		Results:     results,
		PublishedAt: publishedAt,
		ExpiresAt:   time.Now().UTC().Add(ttl),
	}
	if err := c.store.SetJSON(ctx, c.cfg.KeyPrefix+key, entry, ttl); err != nil {
		return false, err
	}

	if c.collector != nil {
		c.collector.RecordAnnounce("cached")
	}
	return true, nil
}

// Invalidate 删除指定键的缓存条目
func (c *Cache) Invalidate(ctx context.Context, service, version string) error {
	return c.store.Delete(ctx, c.cfg.KeyPrefix+types.NormalizeKey(service, version))
}
