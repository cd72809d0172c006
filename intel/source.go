package intel

import (
	"context"

	"github.com/BaSui01/swarmintel/types"
)

// Source 情报源接口
// 每个实现封装一类异构情报馈送（KEV 目录、CVE 数据库、漏洞利用索引、
// 模板扫描器索引、框架模块目录），返回有界结果列表或独立失败
type Source interface {
	// Name 返回稳定的源标识（用于指标与结果归属）
	Name() string

	// Query 查询 (service, version) 的相关情报
	// 实现必须尊重 ctx 取消；priority 在此处按固定排名表一次性赋值
	Query(ctx context.Context, service, version string) ([]types.IntelResult, error)
}

// HealthChecker 可选的健康检查能力
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
