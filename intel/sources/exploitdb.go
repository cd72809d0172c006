package sources

import (
	"context"
	"fmt"
	"net/url"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 💣 Exploit-DB 漏洞利用索引
// =============================================================================

// exploitSearchResponse 索引检索响应
type exploitSearchResponse struct {
	Total   int `json:"total"`
	Matches []struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		Type        string   `json:"type"`
		Platform    string   `json:"platform"`
		Verified    bool     `json:"verified"`
		CVE         []string `json:"cve"`
	} `json:"matches"`
}

// ExploitDBSource 漏洞利用索引源
// 索引里的条目都有可用利用代码，priority 在 4-6 区间：
// 已验证 4，关联 CVE 5，其余 6
type ExploitDBSource struct {
	httpSource
}

// NewExploitDBSource 创建 Exploit-DB 源
func NewExploitDBSource(cfg config.SourceConfig) *ExploitDBSource {
	return &ExploitDBSource{httpSource: newHTTPSource("exploitdb", cfg)}
}

// Name 实现 intel.Source
func (s *ExploitDBSource) Name() string { return s.name }

// Query 实现 intel.Source
func (s *ExploitDBSource) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	keyword := service
	if version != "" {
		keyword = service + " " + version
	}
	endpoint := fmt.Sprintf("%s?query=%s", s.cfg.BaseURL, url.QueryEscape(keyword))

	var resp exploitSearchResponse
	if err := s.fetch(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]types.IntelResult, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		priority := types.PriorityExploitIndexed + 2
		if m.Verified {
			priority = types.PriorityExploitIndexed
		} else if len(m.CVE) > 0 {
			priority = types.PriorityExploitIndexed + 1
		}

		var cveID string
		if len(m.CVE) > 0 {
			cveID = m.CVE[0]
		}

		confidence := 0.7
		if m.Verified {
			confidence = 0.85
		}

		results = append(results, types.IntelResult{
			Source:           s.name,
			CVEID:            cveID,
			Severity:         types.SeverityHigh,
			ExploitAvailable: true,
			ExploitPath:      "exploitdb/" + m.ID,
			Confidence:       confidence,
			Priority:         priority,
			Metadata: map[string]any{
				"description": m.Description,
				"type":        m.Type,
				"platform":    m.Platform,
				"verified":    m.Verified,
			},
		})
	}

	return results, nil
}
