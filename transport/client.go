package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/internal/metrics"
	"github.com/BaSui01/swarmintel/internal/retry"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🔌 传输客户端
// =============================================================================

// Handler 处理一条已验签的订阅消息
type Handler func(channel string, env *Envelope)

// Client 传输客户端
// 独占持有到后端存储的连接状态；发布/订阅/KV/流之外不暴露任何内部缓冲
type Client struct {
	rdb     redis.UniversalClient
	cfg     config.TransportConfig
	secret  []byte
	queue   *outboundQueue
	retryer retry.Retryer
	logger  *zap.Logger
	metrics *metrics.Collector

	mu     sync.RWMutex
	closed bool

	flushCancel context.CancelFunc
	flushDone   chan struct{}
}

// Connect 建立到后端存储的连接池
// MasterName + SentinelAddrs 同时配置时走哨兵发现（向发现端点查询当前
// 可写主节点），否则直连 Addr。发现端点全部耗尽后返回 TRANSPORT_UNAVAILABLE
func Connect(ctx context.Context, cfg config.TransportConfig, logger *zap.Logger) (*Client, error) {
	var rdb redis.UniversalClient
	if cfg.MasterName != "" && len(cfg.SentinelAddrs) > 0 {
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			DialTimeout:   cfg.DialTimeout,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
		})
	}

	clog := logger.With(zap.String("component", "transport"))

	retryer := retry.New(&retry.Policy{
		MaxRetries:   cfg.ConnectRetries,
		InitialDelay: cfg.ReconnectInitialDelay,
		MaxDelay:     cfg.ReconnectMaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}, clog)

	// 测试连接：重试耗尽即视为所有发现端点失效
	if err := retryer.Do(ctx, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	}); err != nil {
		_ = rdb.Close()
		return nil, types.NewError(types.ErrTransportUnavailable,
			"discovery endpoints exhausted").WithCause(err)
	}

	flushCtx, flushCancel := context.WithCancel(context.Background())

	c := &Client{
		rdb:         rdb,
		cfg:         cfg,
		secret:      []byte(cfg.SharedSecret),
		queue:       newOutboundQueue(cfg.OutboundBuffer),
		retryer:     retryer,
		logger:      clog,
		flushCancel: flushCancel,
		flushDone:   make(chan struct{}),
	}

	go c.flushLoop(flushCtx)

	clog.Info("transport connected",
		zap.String("addr", cfg.Addr),
		zap.String("master_name", cfg.MasterName),
		zap.Int("sentinels", len(cfg.SentinelAddrs)),
	)

	return c, nil
}

// UseMetrics 注入指标收集器（可选）
func (c *Client) UseMetrics(m *metrics.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// =============================================================================
// 📣 发布 / 订阅
// =============================================================================

// Publish 签名并发布一条消息（at-most-once，无投递确认）
// 频道名称校验失败在任何网络调用之前返回 CHANNEL_NAME 错误；
// 网络故障时消息进入有界本地缓冲，重连后由刷新循环补发
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if err := ValidateChannel(channel); err != nil {
		return err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return types.NewError(types.ErrTransportClosed, "transport client is closed")
	}
	m := c.metrics
	c.mu.RUnlock()

	env, err := Seal(channel, message, c.secret)
	if err != nil {
		return fmt.Errorf("seal message: %w", err)
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := c.rdb.Publish(ctx, channel, body).Err(); err != nil {
		// 断线：进入缓冲，重连后补发。跨断线边界不保证顺序
		dropped := c.queue.Push(pendingMessage{channel: channel, body: body, queuedAt: time.Now()})
		c.logger.Warn("publish failed, message buffered",
			zap.String("channel", channel),
			zap.Int("queued", c.queue.Len()),
			zap.Bool("dropped_oldest", dropped),
			zap.Error(err),
		)
		if m != nil {
			m.RecordPublish("buffered")
			if dropped {
				m.RecordBufferDrop()
			}
		}
		return nil
	}

	if m != nil {
		m.RecordPublish("sent")
	}
	return nil
}

// Subscription 可取消的后台监听
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// Close 停止监听并释放订阅连接
func (s *Subscription) Close() error {
	err := s.pubsub.Close()
	<-s.done
	return err
}

// Subscribe 订阅频道或通配模式，为每条验签通过的消息调用 handler
// JSON 解析失败或签名不匹配的消息记录日志后跳过，绝不触发 handler
func (c *Client) Subscribe(ctx context.Context, target string, handler Handler) (*Subscription, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, types.NewError(types.ErrTransportClosed, "transport client is closed")
	}
	c.mu.RUnlock()

	var pubsub *redis.PubSub
	if IsPattern(target) {
		if err := ValidatePattern(target); err != nil {
			return nil, err
		}
		pubsub = c.rdb.PSubscribe(ctx, target)
	} else {
		if err := ValidateChannel(target); err != nil {
			return nil, err
		}
		pubsub = c.rdb.Subscribe(ctx, target)
	}

	// 等待订阅确认，立刻暴露连接故障
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, types.NewError(types.ErrTransportUnavailable,
			"subscribe failed").WithCause(err)
	}

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}

	go c.listen(target, pubsub, handler, sub.done)

	c.logger.Info("subscribed", zap.String("target", target))
	return sub, nil
}

// listen 订阅消息循环
func (c *Client) listen(target string, pubsub *redis.PubSub, handler Handler, done chan struct{}) {
	defer close(done)

	for msg := range pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.logger.Warn("malformed message skipped",
				zap.String("channel", msg.Channel),
				zap.Error(err),
			)
			continue
		}

		// 验签失败属于安全事件：丢弃 + 记录，绝不投递
		if err := env.Verify(msg.Channel, c.secret); err != nil {
			c.logger.Error("signature verification failed, message discarded",
				zap.String("channel", msg.Channel),
				zap.String("message_id", env.ID),
			)
			c.mu.RLock()
			m := c.metrics
			c.mu.RUnlock()
			if m != nil {
				m.RecordSignatureFailure()
			}
			continue
		}

		handler(msg.Channel, &env)
	}

	c.logger.Debug("subscription closed", zap.String("target", target))
}

// =============================================================================
// 🗄️ 键值访问
// =============================================================================

// ErrNotFound 键不存在
var ErrNotFound = fmt.Errorf("transport: key not found")

// Get 获取键值
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("transport get failed: %w", err)
	}
	return val, nil
}

// Set 设置键值，ttl 为 0 表示不过期
func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("transport set failed: %w", err)
	}
	return nil
}

// GetJSON 获取并反序列化 JSON 键值
func (c *Client) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// SetJSON 序列化并设置 JSON 键值
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.Set(ctx, key, string(data), ttl)
}

// Delete 删除键
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// =============================================================================
// 📜 审计流
// =============================================================================

// StreamEntry 流中的一条记录
type StreamEntry struct {
	ID     string
	Fields map[string]any
}

// Append 向审计流追加一条记录，返回流内序号
func (c *Client) Append(ctx context.Context, stream string, fields map[string]any) (string, error) {
	if err := ValidateChannel(stream); err != nil {
		return "", err
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("stream append failed: %w", err)
	}
	return id, nil
}

// Read 按序号区间读取流记录（审计回放）
// start/stop 使用 Redis 流区间语法（"-" 与 "+" 表示两端）
func (c *Client) Read(ctx context.Context, stream, start, stop string, count int64) ([]StreamEntry, error) {
	if err := ValidateChannel(stream); err != nil {
		return nil, err
	}
	msgs, err := c.rdb.XRangeN(ctx, stream, start, stop, count).Result()
	if err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	entries := make([]StreamEntry, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]any, len(m.Values))
		for k, v := range m.Values {
			fields[k] = v
		}
		entries = append(entries, StreamEntry{ID: m.ID, Fields: fields})
	}
	return entries, nil
}

// =============================================================================
// ♻️ 刷新循环与生命周期
// =============================================================================

// flushLoop 缓冲区刷新循环
// 重连状态单写者：只有本循环探测连通性并补发缓冲消息
func (c *Client) flushLoop(ctx context.Context) {
	defer close(c.flushDone)

	interval := c.cfg.FlushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	disconnected := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.queue.Len() == 0 && !disconnected {
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		err := c.rdb.Ping(pingCtx).Err()
		cancel()

		if err != nil {
			if !disconnected {
				c.logger.Warn("transport disconnected", zap.Error(err))
			}
			disconnected = true
			continue
		}

		if disconnected {
			disconnected = false
			c.logger.Info("transport reconnected", zap.Int("buffered", c.queue.Len()))
			c.mu.RLock()
			m := c.metrics
			c.mu.RUnlock()
			if m != nil {
				m.RecordReconnect()
			}
		}

		c.flushPending(ctx)
	}
}

// flushPending 补发缓冲消息，失败的消息放回队列等待下一轮
func (c *Client) flushPending(ctx context.Context) {
	pending := c.queue.Drain()
	if len(pending) == 0 {
		return
	}

	flushed := 0
	for i, msg := range pending {
		if err := c.rdb.Publish(ctx, msg.channel, msg.body).Err(); err != nil {
			c.queue.Requeue(pending[i:])
			break
		}
		flushed++
	}

	if flushed > 0 {
		c.logger.Info("flushed buffered messages",
			zap.Int("flushed", flushed),
			zap.Int("remaining", c.queue.Len()),
		)
		c.mu.RLock()
		m := c.metrics
		c.mu.RUnlock()
		if m != nil {
			m.RecordBufferFlush(flushed)
		}
	}
}

// Ping 检查后端连接
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return types.NewError(types.ErrTransportClosed, "transport client is closed")
	}
	return c.rdb.Ping(ctx).Err()
}

// Pending 当前缓冲的待发消息数（观测用）
func (c *Client) Pending() int {
	return c.queue.Len()
}

// Close 关闭传输客户端
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.flushCancel()
	<-c.flushDone

	c.logger.Info("closing transport client")
	return c.rdb.Close()
}
