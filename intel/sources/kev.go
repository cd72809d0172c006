package sources

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🚨 CISA KEV 已知被利用漏洞目录
// =============================================================================

// kevCatalog CISA 发布的目录结构
type kevCatalog struct {
	CatalogVersion  string `json:"catalogVersion"`
	Count           int    `json:"count"`
	Vulnerabilities []struct {
		CVEID             string `json:"cveID"`
		VendorProject     string `json:"vendorProject"`
		Product           string `json:"product"`
		VulnerabilityName string `json:"vulnerabilityName"`
		ShortDescription  string `json:"shortDescription"`
		RequiredAction    string `json:"requiredAction"`
		KnownRansomware   string `json:"knownRansomwareCampaignUse"`
	} `json:"vulnerabilities"`
}

// KEVSource 已知被利用漏洞目录源
// 目录整体下载后在内存缓存一段时间，避免每次查询都拉取全量文件
type KEVSource struct {
	httpSource

	mu        sync.Mutex
	catalog   *kevCatalog
	fetchedAt time.Time
	maxAge    time.Duration
}

// NewKEVSource 创建 KEV 源
func NewKEVSource(cfg config.SourceConfig) *KEVSource {
	return &KEVSource{
		httpSource: newHTTPSource("kev", cfg),
		maxAge:     time.Hour,
	}
}

// Name 实现 intel.Source
func (s *KEVSource) Name() string { return s.name }

// Query 实现 intel.Source
// KEV 目录没有版本字段，按产品/厂商名匹配服务；
// 命中即为最高优先级（priority 1），因为漏洞已被实际利用
func (s *KEVSource) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	catalog, err := s.getCatalog(ctx)
	if err != nil {
		return nil, err
	}

	var results []types.IntelResult
	for _, v := range catalog.Vulnerabilities {
		if !matchesService(v.Product, service) && !matchesService(v.VendorProject, service) &&
			!matchesService(v.VulnerabilityName, service) {
			continue
		}

		results = append(results, types.IntelResult{
			Source:           s.name,
			CVEID:            v.CVEID,
			Severity:         types.SeverityCritical,
			ExploitAvailable: true,
			Confidence:       0.9,
			Priority:         types.RankPriority(types.SeverityCritical, true, false),
			Metadata: map[string]any{
				"vendor":          v.VendorProject,
				"product":         v.Product,
				"name":            v.VulnerabilityName,
				"required_action": v.RequiredAction,
				"ransomware_use":  v.KnownRansomware,
			},
		})

		// 有界结果：单源最多贡献 20 条
		if len(results) >= 20 {
			break
		}
	}

	return results, nil
}

// getCatalog 返回内存缓存的目录，过期时重新拉取
func (s *KEVSource) getCatalog(ctx context.Context) (*kevCatalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.catalog != nil && time.Since(s.fetchedAt) < s.maxAge {
		return s.catalog, nil
	}

	var catalog kevCatalog
	if err := s.fetch(ctx, s.cfg.BaseURL, nil, &catalog); err != nil {
		// 拉取失败时退回旧目录（若有），情报略旧好过没有
		if s.catalog != nil {
			return s.catalog, nil
		}
		return nil, err
	}

	s.catalog = &catalog
	s.fetchedAt = time.Now()
	return s.catalog, nil
}
