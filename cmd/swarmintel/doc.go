// =============================================================================
// 📦 SwarmIntel 守护进程
// =============================================================================
// 协调层守护进程：连接传输后端，注册情报源，加入群体广播频道，
// 并在管理端口上暴露查询 API、Prometheus 指标与健康检查。
// =============================================================================
package main
