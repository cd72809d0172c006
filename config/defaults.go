// =============================================================================
// 📦 SwarmIntel 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Transport:  DefaultTransportConfig(),
		Aggregator: DefaultAggregatorConfig(),
		Cache:      DefaultCacheConfig(),
		Stigmergy:  DefaultStigmergyConfig(),
		Sources:    DefaultSourcesConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9091,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultTransportConfig 返回默认传输层配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Addr:                  "localhost:6379",
		Password:              "",
		DB:                    0,
		PoolSize:              10,
		MinIdleConns:          2,
		OutboundBuffer:        1024,
		FlushInterval:         2 * time.Second,
		DialTimeout:           5 * time.Second,
		ConnectRetries:        5,
		ReconnectInitialDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:     30 * time.Second,
	}
}

// DefaultAggregatorConfig 返回默认聚合器配置
// 查询级超时 30s：慢源在此上限内独立计时，超时只影响自身
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		QueryTimeout:        30 * time.Second,
		BreakerEnabled:      true,
		BreakerThreshold:    5,
		BreakerResetTimeout: 60 * time.Second,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:       10 * time.Minute,
		KeyPrefix: "swarmintel:intel:",
	}
}

// DefaultStigmergyConfig 返回默认群体广播配置
func DefaultStigmergyConfig() StigmergyConfig {
	return StigmergyConfig{
		ChannelPrefix: "findings",
		AnnounceTTL:   60 * time.Second,
		Interests:     nil, // 为空表示对所有发现类型感兴趣
		AuditStream:   "audit:intel",
	}
}

// DefaultSourcesConfig 返回默认情报源配置
func DefaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		KEV: SourceConfig{
			Enabled: true,
			BaseURL: "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json",
			Timeout: 15 * time.Second,
		},
		NVD: SourceConfig{
			Enabled: true,
			BaseURL: "https://services.nvd.nist.gov/rest/json/cves/2.0",
			Timeout: 15 * time.Second,
			// NVD 公共配额：无 Key 时约每 30 秒 5 次请求
			RateLimit: 0.16,
		},
		ExploitDB: SourceConfig{
			Enabled: true,
			BaseURL: "https://exploits.shodan.io/api/search",
			Timeout: 10 * time.Second,
		},
		Nuclei: SourceConfig{
			Enabled: true,
			BaseURL: "https://raw.githubusercontent.com/projectdiscovery/nuclei-templates/main/cves.json",
			Timeout: 10 * time.Second,
		},
		Metasploit: SourceConfig{
			Enabled: true,
			BaseURL: "https://raw.githubusercontent.com/rapid7/metasploit-framework/master/db/modules_metadata_base.json",
			Timeout: 15 * time.Second,
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "swarmintel",
		SampleRate:   1.0,
	}
}
