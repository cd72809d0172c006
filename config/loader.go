// =============================================================================
// 📦 SwarmIntel 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SWARMINTEL").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 SwarmIntel 协调层的完整配置结构
type Config struct {
	// Server 服务器配置（指标与健康检查端口）
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Transport 传输层配置（Redis 哨兵 / 单节点）
	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`

	// Aggregator 情报聚合器配置
	Aggregator AggregatorConfig `yaml:"aggregator" env:"AGGREGATOR"`

	// Cache 情报缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Stigmergy 群体广播配置
	Stigmergy StigmergyConfig `yaml:"stigmergy" env:"STIGMERGY"`

	// Sources 情报源配置
	Sources SourcesConfig `yaml:"sources" env:"SOURCES"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// Metrics 端口（/metrics 与 /healthz）
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TransportConfig 传输层配置
// MasterName + SentinelAddrs 同时设置时走哨兵发现，否则直连 Addr
type TransportConfig struct {
	// 直连地址（无哨兵时使用）
	Addr string `yaml:"addr" env:"ADDR"`
	// 哨兵主节点名
	MasterName string `yaml:"master_name" env:"MASTER_NAME"`
	// 哨兵发现端点列表
	SentinelAddrs []string `yaml:"sentinel_addrs" env:"SENTINEL_ADDRS"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 消息签名共享密钥（带外分发）
	SharedSecret string `yaml:"shared_secret" env:"SHARED_SECRET"`
	// 断线期间的发送缓冲区容量（溢出时丢弃最旧消息）
	OutboundBuffer int `yaml:"outbound_buffer" env:"OUTBOUND_BUFFER"`
	// 缓冲区刷新间隔
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	// 建连超时
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	// 重连最大尝试次数（超过后返回 TRANSPORT_UNAVAILABLE）
	ConnectRetries int `yaml:"connect_retries" env:"CONNECT_RETRIES"`
	// 重连初始退避
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay" env:"RECONNECT_INITIAL_DELAY"`
	// 重连最大退避
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay" env:"RECONNECT_MAX_DELAY"`
}

// AggregatorConfig 聚合器配置
type AggregatorConfig struct {
	// 查询级全局超时（所有源共享的时间上限）
	QueryTimeout time.Duration `yaml:"query_timeout" env:"QUERY_TIMEOUT"`
	// 是否为每个情报源包一层熔断器
	BreakerEnabled bool `yaml:"breaker_enabled" env:"BREAKER_ENABLED"`
	// 熔断连续失败阈值
	BreakerThreshold int `yaml:"breaker_threshold" env:"BREAKER_THRESHOLD"`
	// 熔断恢复等待时间
	BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout" env:"BREAKER_RESET_TIMEOUT"`
}

// CacheConfig 情报缓存配置
type CacheConfig struct {
	// 缓存条目 TTL
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// StigmergyConfig 群体广播配置
type StigmergyConfig struct {
	// 频道前缀（findings:<hash>:<type>）
	ChannelPrefix string `yaml:"channel_prefix" env:"CHANNEL_PREFIX"`
	// 广播 TTL 提示（接收方缓存寿命）
	AnnounceTTL time.Duration `yaml:"announce_ttl" env:"ANNOUNCE_TTL"`
	// 感兴趣的发现类型（为空表示全部）
	Interests []string `yaml:"interests" env:"INTERESTS"`
	// 审计流名称
	AuditStream string `yaml:"audit_stream" env:"AUDIT_STREAM"`
}

// SourceConfig 单个情报源配置
type SourceConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 速率限制（每秒请求数，0 表示不限）
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
}

// SourcesConfig 情报源集合配置
type SourcesConfig struct {
	// KEV 已知被利用漏洞目录（CISA）
	KEV SourceConfig `yaml:"kev" env:"KEV"`
	// NVD CVE 数据库
	NVD SourceConfig `yaml:"nvd" env:"NVD"`
	// ExploitDB 漏洞利用索引
	ExploitDB SourceConfig `yaml:"exploitdb" env:"EXPLOITDB"`
	// Nuclei 模板扫描器索引
	Nuclei SourceConfig `yaml:"nuclei" env:"NUCLEI"`
	// Metasploit 框架模块目录
	Metasploit SourceConfig `yaml:"metasploit" env:"METASPLOIT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SWARMINTEL",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Transport.Addr == "" && (c.Transport.MasterName == "" || len(c.Transport.SentinelAddrs) == 0) {
		errs = append(errs, "either addr or master_name+sentinel_addrs must be set")
	}
	if c.Transport.OutboundBuffer <= 0 {
		errs = append(errs, "outbound_buffer must be positive")
	}
	if c.Aggregator.QueryTimeout <= 0 {
		errs = append(errs, "query_timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "cache ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
