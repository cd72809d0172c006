package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// httpSource 各情报源共享的 HTTP 基础设施
type httpSource struct {
	name    string
	cfg     config.SourceConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newHTTPSource(name string, cfg config.SourceConfig) httpSource {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s := httpSource{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return s
}

// fetch 执行一次受速率限制的 GET 并反序列化响应
func (s *httpSource) fetch(ctx context.Context, url string, headers map[string]string, dest any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrSourceError, "fetch failed").
			WithSource(s.name).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewError(types.ErrSourceError,
			fmt.Sprintf("unexpected status %d", resp.StatusCode)).WithSource(s.name)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// HealthCheck 通过 HEAD 请求探测端点可达性
func (s *httpSource) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.cfg.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("endpoint unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// matchesService 判断文本是否提及目标服务（大小写不敏感）
func matchesService(text, service string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(service)))
}

// severityFromCVSS 按 CVSS 基础分映射严重级别
func severityFromCVSS(score float64) types.Severity {
	switch {
	case score >= 9.0:
		return types.SeverityCritical
	case score >= 7.0:
		return types.SeverityHigh
	case score >= 4.0:
		return types.SeverityMedium
	case score > 0:
		return types.SeverityLow
	default:
		return types.SeverityInfo
	}
}
