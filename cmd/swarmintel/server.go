package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel"
	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/internal/metrics"
	"github.com/BaSui01/swarmintel/internal/server"
	"github.com/BaSui01/swarmintel/internal/telemetry"
)

// =============================================================================
// 🖥️ 守护进程服务器
// =============================================================================

// Server 协调层守护进程：协调器 + 管理端 HTTP
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	coordinator *swarmintel.Coordinator
	adminServer *server.Manager
	registry    *prometheus.Registry
	providers   *telemetry.Providers
}

// NewServer 创建守护进程实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
	}
}

// Start 连接传输、注册情报源、加入群体频道并启动管理端口
func (s *Server) Start() error {
	ctx := context.Background()

	coord, err := swarmintel.New(ctx, s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to wire coordinator: %w", err)
	}
	s.coordinator = coord

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector())
	s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	coord.UseMetrics(metrics.NewCollector(s.registry, s.logger))

	if err := coord.Listen(ctx); err != nil {
		_ = coord.Close()
		return fmt.Errorf("failed to join swarm channel: %w", err)
	}

	if err := s.startAdminServer(); err != nil {
		_ = coord.Close()
		return err
	}

	s.logger.Info("daemon started",
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Strings("sources", coord.Aggregator.Sources()),
	)
	return nil
}

// =============================================================================
// 🌐 管理端 HTTP
// =============================================================================

func (s *Server) startAdminServer() error {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)

	mux.HandleFunc("/api/v1/intel/query", s.handleQuery)
	mux.HandleFunc("/api/v1/intel/metrics", s.handleSourceMetrics)
	mux.HandleFunc("/api/v1/intel/metrics/reset", s.handleMetricsReset)
	mux.HandleFunc("/api/v1/sources", s.handleSources)

	cfg := server.DefaultConfig()
	cfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	if s.cfg.Server.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	}

	s.adminServer = server.NewManager(mux, cfg, s.logger)
	return s.adminServer.Start()
}

// handleHealthz 进程存活检查
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleReadyz 传输连通性检查
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Transport.Ping(r.Context()); err != nil {
		http.Error(w, "transport unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ready")
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

// handleQuery 情报查询端点（缓存优先路径）
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	version := r.URL.Query().Get("version")

	results, err := s.coordinator.Query(r.Context(), service, version)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"service": service,
		"version": version,
		"count":   len(results),
		"results": results,
	})
}

// handleSourceMetrics 源级超时/错误计数快照
func (s *Server) handleSourceMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coordinator.Aggregator.Metrics())
}

// handleMetricsReset 操作员命令：清零源级计数器
func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.coordinator.Aggregator.ResetMetrics()
	w.WriteHeader(http.StatusNoContent)
}

// handleSources 已注册源列表及健康状态
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	health := s.coordinator.Aggregator.HealthCheck(r.Context())

	type sourceStatus struct {
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}

	out := make([]sourceStatus, 0)
	for _, name := range s.coordinator.Aggregator.Sources() {
		st := sourceStatus{Name: name, Healthy: true}
		if err, checked := health[name]; checked && err != nil {
			st.Healthy = false
			st.Error = err.Error()
		}
		out = append(out, st)
	}

	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.adminServer != nil {
		s.adminServer.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有组件
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			s.logger.Error("Admin server shutdown error", zap.Error(err))
		}
	}

	if s.coordinator != nil {
		if err := s.coordinator.Close(); err != nil {
			s.logger.Error("Coordinator shutdown error", zap.Error(err))
		}
	}

	if s.providers != nil {
		if err := s.providers.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
