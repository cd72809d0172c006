package intel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/transport"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🧪 缓存 / 请求合并测试
// =============================================================================

// gateSource 可阻塞的计数源，用于观测扇出次数
type gateSource struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	results []types.IntelResult
}

func (g *gateSource) Name() string { return "gate" }

func (g *gateSource) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.results, nil
}

func (g *gateSource) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func setupCache(t *testing.T, cfg config.CacheConfig, src Source) (*miniredis.Miniredis, *Cache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := transport.Connect(context.Background(), config.TransportConfig{
		Addr:           mr.Addr(),
		SharedSecret:   "secret",
		OutboundBuffer: 8,
		DialTimeout:    time.Second,
		ConnectRetries: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	agg := NewAggregator(config.AggregatorConfig{QueryTimeout: time.Second}, zap.NewNop())
	if src != nil {
		require.NoError(t, agg.AddSource(src))
	}

	return mr, NewCache(agg, client, cfg, zap.NewNop())
}

func TestCache_HitSkipsSources(t *testing.T) {
	src := &gateSource{results: []types.IntelResult{result("gate", 1, 0.9)}}
	_, cache := setupCache(t, config.CacheConfig{TTL: time.Minute}, src)
	ctx := context.Background()

	first, err := cache.Query(ctx, "Apache httpd", "2.4.49")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, src.Calls())

	// 命中：零源调用，键推导大小写不敏感
	second, err := cache.Query(ctx, "APACHE HTTPD", " 2.4.49 ")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.Calls())
}

func TestCache_CoalescingInvariant(t *testing.T) {
	// 合并不变量：同键 N 个并发调用方产生恰好一次上游扇出
	src := &gateSource{
		gate:    make(chan struct{}),
		results: []types.IntelResult{result("gate", 2, 0.8)},
	}
	_, cache := setupCache(t, config.CacheConfig{TTL: time.Minute}, src)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	outs := make([][]types.IntelResult, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i], errs[i] = cache.Query(ctx, "redis", "7.0")
		}(i)
	}

	// 等所有调用方挂在在途查询上，再放行唯一一次扇出
	require.Eventually(t, func() bool { return src.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Len(t, outs[i], 1, "每个调用方都拿到共享结果")
	}
	assert.Equal(t, 1, src.Calls(), "N 个并发调用方只允许一次上游扇出")
}

func TestCache_ExpiredEntryTriggersFreshFanout(t *testing.T) {
	src := &gateSource{results: []types.IntelResult{result("gate", 1, 0.9)}}
	_, cache := setupCache(t, config.CacheConfig{TTL: 50 * time.Millisecond}, src)
	ctx := context.Background()

	_, err := cache.Query(ctx, "redis", "7.0")
	require.NoError(t, err)
	require.Equal(t, 1, src.Calls())

	// 惰性过期：now > expires_at 视为未命中
	time.Sleep(80 * time.Millisecond)
	_, err = cache.Query(ctx, "redis", "7.0")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls())
}

func TestCache_StoreAnnouncementFreshness(t *testing.T) {
	_, cache := setupCache(t, config.CacheConfig{TTL: time.Minute}, nil)
	ctx := context.Background()

	key := types.NormalizeKey("redis", "7.0")
	older := []types.IntelResult{result("remote", 3, 0.5)}
	newer := []types.IntelResult{result("remote", 1, 0.9)}

	base := time.Now().UTC()

	stored, err := cache.StoreAnnouncement(ctx, key, older, base, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored, "空缓存任何广播都写入")

	// 更旧的 published_at 不覆盖
	stored, err = cache.StoreAnnouncement(ctx, key, newer, base.Add(-time.Second), time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	// 相同时间戳保留现有条目（防陈旧重放）
	stored, err = cache.StoreAnnouncement(ctx, key, newer, base, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)

	// 严格更新的广播覆盖
	stored, err = cache.StoreAnnouncement(ctx, key, newer, base.Add(time.Second), time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	results, err := cache.Query(ctx, "redis", "7.0")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Priority)
}

func TestCache_AnnouncementServesLocalQueries(t *testing.T) {
	// 广播写入后本地查询零扇出直接命中
	src := &gateSource{results: []types.IntelResult{result("gate", 2, 0.8)}}
	_, cache := setupCache(t, config.CacheConfig{TTL: time.Minute}, src)
	ctx := context.Background()

	remote := []types.IntelResult{result("remote", 1, 0.95)}
	_, err := cache.StoreAnnouncement(ctx, types.NormalizeKey("nginx", "1.25"),
		remote, time.Now().UTC(), time.Minute)
	require.NoError(t, err)

	results, err := cache.Query(ctx, "nginx", "1.25")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "remote", results[0].Source)
	assert.Zero(t, src.Calls(), "广播命中跳过聚合扇出")
}

func TestCache_Invalidate(t *testing.T) {
	src := &gateSource{results: []types.IntelResult{result("gate", 1, 0.9)}}
	_, cache := setupCache(t, config.CacheConfig{TTL: time.Minute}, src)
	ctx := context.Background()

	_, err := cache.Query(ctx, "redis", "7.0")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "redis", "7.0"))

	_, err = cache.Query(ctx, "redis", "7.0")
	require.NoError(t, err)
	assert.Equal(t, 2, src.Calls())
}
