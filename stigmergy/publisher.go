package stigmergy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/transport"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 📢 群体广播发布端
// =============================================================================

// Announcement 群体广播负载
// published_at 由传输层封套携带，这里只带业务字段
type Announcement struct {
	// Service / Version 与本地缓存使用同一套规范化键推导
	Service string `json:"service"`
	Version string `json:"version"`

	// Target 发现来源目标（主机、URL 等），用于主题推导
	Target string `json:"target"`

	// Type 发现类型（sqli、rce、cve 等），主题的最后一段
	Type string `json:"type"`

	// TTLSeconds 接收方缓存寿命提示
	TTLSeconds int `json:"ttl_seconds"`

	Results []types.IntelResult `json:"results"`
}

// TTL 返回 TTL 提示的时长形式
func (a Announcement) TTL() time.Duration {
	return time.Duration(a.TTLSeconds) * time.Second
}

// Publisher 把聚合结果广播到群体频道
type Publisher struct {
	client *transport.Client
	cfg    config.StigmergyConfig
	logger *zap.Logger
}

// NewPublisher 创建发布端
func NewPublisher(client *transport.Client, cfg config.StigmergyConfig, logger *zap.Logger) *Publisher {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = "findings"
	}
	if cfg.AnnounceTTL <= 0 {
		cfg.AnnounceTTL = 60 * time.Second
	}
	return &Publisher{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "stigmergy-publisher")),
	}
}

// Announce 签名并发布一组聚合结果
// 主题由 (target, type) 确定性推导；TTL 未设置时使用配置默认值。
// 发布是 at-most-once：传输层断线时消息进入缓冲，由其自行补发
func (p *Publisher) Announce(ctx context.Context, ann Announcement) error {
	if ann.TTLSeconds <= 0 {
		ann.TTLSeconds = int(p.cfg.AnnounceTTL / time.Second)
	}

	topic := Topic(p.cfg.ChannelPrefix, ann.Target, ann.Type)
	if err := p.client.Publish(ctx, topic, ann); err != nil {
		return err
	}

	p.logger.Debug("announced findings",
		zap.String("topic", topic),
		zap.String("service", ann.Service),
		zap.Int("results", len(ann.Results)),
	)
	return nil
}
