package stigmergy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/intel"
	"github.com/BaSui01/swarmintel/internal/metrics"
	"github.com/BaSui01/swarmintel/transport"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 📡 群体广播订阅端
// =============================================================================

// Subscriber 监听群体频道并把验签通过的广播写入本地缓存
// 收到广播即可跳过自己的聚合扇出，这是共享信息素的意义所在
type Subscriber struct {
	client    *transport.Client
	cache     *intel.Cache
	cfg       config.StigmergyConfig
	logger    *zap.Logger
	collector *metrics.Collector
	interests map[string]struct{}
	sub       *transport.Subscription
}

// NewSubscriber 创建订阅端
// cfg.Interests 为空表示对所有发现类型感兴趣
func NewSubscriber(client *transport.Client, cache *intel.Cache, cfg config.StigmergyConfig, logger *zap.Logger) *Subscriber {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "findings"
	}
	if cfg.AuditStream == "" {
		cfg.AuditStream = "audit:intel"
	}

	var interests map[string]struct{}
	if len(cfg.Interests) > 0 {
		interests = make(map[string]struct{}, len(cfg.Interests))
		for _, t := range cfg.Interests {
			interests[t] = struct{}{}
		}
	}

	return &Subscriber{
		client:    client,
		cache:     cache,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "stigmergy-subscriber")),
		interests: interests,
	}
}

// UseCollector 注入 Prometheus 指标收集器（可选）
func (s *Subscriber) UseCollector(m *metrics.Collector) {
	s.collector = m
}

// Start 在群体通配频道上启动后台监听
func (s *Subscriber) Start(ctx context.Context) error {
	pattern := s.cfg.ChannelPrefix + ":*"
	sub, err := s.client.Subscribe(ctx, pattern, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("listening for swarm announcements", zap.String("pattern", pattern))
	return nil
}

// handle 处理一条已验签的广播
// 传输层已完成验签与 JSON 解析防护；这里只剩业务解码、审计与缓存
func (s *Subscriber) handle(channel string, env *transport.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var ann Announcement
	if err := env.Decode(&ann); err != nil {
		s.logger.Warn("undecodable announcement skipped",
			zap.String("channel", channel),
			zap.Error(err),
		)
		return
	}

	// 审计：不感兴趣的主题也要反序列化并记录，只是不进缓存
	s.audit(ctx, channel, env, ann)

	if !s.interested(ann.Type) {
		if s.collector != nil {
			s.collector.RecordAnnounce("ignored")
		}
		return
	}

	key := types.NormalizeKey(ann.Service, ann.Version)
	stored, err := s.cache.StoreAnnouncement(ctx, key, ann.Results, env.PublishedAt, ann.TTL())
	if err != nil {
		s.logger.Warn("failed to cache announcement",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}

	if stored {
		s.logger.Debug("announcement cached",
			zap.String("key", key),
			zap.String("channel", channel),
			zap.Int("results", len(ann.Results)),
		)
	}
}

// interested 判断发现类型是否在兴趣列表内
func (s *Subscriber) interested(findingType string) bool {
	if s.interests == nil {
		return true
	}
	_, ok := s.interests[findingType]
	return ok
}

// audit 把广播记入审计流（尽力而为，失败只记日志）
func (s *Subscriber) audit(ctx context.Context, channel string, env *transport.Envelope, ann Announcement) {
	_, err := s.client.Append(ctx, s.cfg.AuditStream, map[string]any{
		"message_id":   env.ID,
		"channel":      channel,
		"service":      ann.Service,
		"version":      ann.Version,
		"type":         ann.Type,
		"results":      len(ann.Results),
		"published_at": env.PublishedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Warn("audit append failed", zap.Error(err))
	}
}

// Close 停止监听
func (s *Subscriber) Close() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Close()
}
