package sources

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🧨 Metasploit 框架模块目录
// =============================================================================

// msfModule 模块元数据（目录是 fullname -> metadata 的大映射）
type msfModule struct {
	Name           string   `json:"name"`
	Fullname       string   `json:"fullname"`
	Description    string   `json:"description"`
	Rank           int      `json:"rank"`
	Type           string   `json:"type"`
	References     []string `json:"references"`
	DisclosureDate string   `json:"disclosure_date"`
}

// MetasploitSource 框架模块目录源
// 与 KEV 一样整体下载 + 内存缓存；只匹配 exploit 类型模块
type MetasploitSource struct {
	httpSource

	mu        sync.Mutex
	modules   map[string]msfModule
	fetchedAt time.Time
	maxAge    time.Duration
}

// NewMetasploitSource 创建 Metasploit 源
func NewMetasploitSource(cfg config.SourceConfig) *MetasploitSource {
	return &MetasploitSource{
		httpSource: newHTTPSource("metasploit", cfg),
		maxAge:     time.Hour,
	}
}

// Name 实现 intel.Source
func (s *MetasploitSource) Name() string { return s.name }

// Query 实现 intel.Source
func (s *MetasploitSource) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	modules, err := s.getModules(ctx)
	if err != nil {
		return nil, err
	}

	var results []types.IntelResult
	for _, m := range modules {
		if m.Type != "exploit" {
			continue
		}
		if !matchesService(m.Fullname, service) && !matchesService(m.Description, service) {
			continue
		}

		// rank >= 500 (excellent/great) 视为可靠利用
		priority := types.PriorityExploitIndexed + 2
		confidence := 0.65
		if m.Rank >= 500 {
			priority = types.PriorityExploitIndexed
			confidence = 0.85
		} else if m.Rank >= 300 {
			priority = types.PriorityExploitIndexed + 1
			confidence = 0.75
		}

		results = append(results, types.IntelResult{
			Source:           s.name,
			CVEID:            firstCVE(m.References),
			Severity:         types.SeverityHigh,
			ExploitAvailable: true,
			ExploitPath:      m.Fullname,
			Confidence:       confidence,
			Priority:         priority,
			Metadata: map[string]any{
				"module_name":     m.Name,
				"rank":            m.Rank,
				"disclosure_date": m.DisclosureDate,
			},
		})

		if len(results) >= 20 {
			break
		}
	}

	return results, nil
}

// getModules 返回内存缓存的模块目录，过期时重新拉取
func (s *MetasploitSource) getModules(ctx context.Context) (map[string]msfModule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.modules != nil && time.Since(s.fetchedAt) < s.maxAge {
		return s.modules, nil
	}

	var modules map[string]msfModule
	if err := s.fetch(ctx, s.cfg.BaseURL, nil, &modules); err != nil {
		if s.modules != nil {
			return s.modules, nil
		}
		return nil, err
	}

	s.modules = modules
	s.fetchedAt = time.Now()
	return s.modules, nil
}

// firstCVE 从引用列表提取第一个 CVE 编号
func firstCVE(refs []string) string {
	for _, ref := range refs {
		if strings.HasPrefix(ref, "CVE-") {
			return ref
		}
		if strings.HasPrefix(ref, "CVE,") {
			// 目录里的格式是 "CVE,2021-44228"
			return "CVE-" + strings.TrimPrefix(ref, "CVE,")
		}
	}
	return ""
}
