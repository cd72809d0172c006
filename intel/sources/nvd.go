package sources

import (
	"context"
	"fmt"
	"net/url"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 📚 NVD CVE 数据库
// =============================================================================

// nvdResponse NVD 2.0 API 响应（只解析需要的字段）
type nvdResponse struct {
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE struct {
			ID           string `json:"id"`
			Descriptions []struct {
				Lang  string `json:"lang"`
				Value string `json:"value"`
			} `json:"descriptions"`
			Metrics struct {
				CVSSMetricV31 []struct {
					CVSSData struct {
						BaseScore    float64 `json:"baseScore"`
						BaseSeverity string  `json:"baseSeverity"`
					} `json:"cvssData"`
				} `json:"cvssMetricV31"`
			} `json:"metrics"`
		} `json:"cve"`
	} `json:"vulnerabilities"`
}

// NVDSource NVD CVE 数据库源
// 公共配额很紧（无 Key 约每 30 秒 5 次），速率限制器在请求前阻塞等待
type NVDSource struct {
	httpSource
}

// NewNVDSource 创建 NVD 源
func NewNVDSource(cfg config.SourceConfig) *NVDSource {
	return &NVDSource{httpSource: newHTTPSource("nvd", cfg)}
}

// Name 实现 intel.Source
func (s *NVDSource) Name() string { return s.name }

// Query 实现 intel.Source
func (s *NVDSource) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	keyword := service
	if version != "" {
		keyword = service + " " + version
	}
	endpoint := fmt.Sprintf("%s?keywordSearch=%s&resultsPerPage=20",
		s.cfg.BaseURL, url.QueryEscape(keyword))

	headers := map[string]string{}
	if s.cfg.APIKey != "" {
		headers["apiKey"] = s.cfg.APIKey
	}

	var resp nvdResponse
	if err := s.fetch(ctx, endpoint, headers, &resp); err != nil {
		return nil, err
	}

	results := make([]types.IntelResult, 0, len(resp.Vulnerabilities))
	for _, v := range resp.Vulnerabilities {
		var score float64
		if len(v.CVE.Metrics.CVSSMetricV31) > 0 {
			score = v.CVE.Metrics.CVSSMetricV31[0].CVSSData.BaseScore
		}
		sev := severityFromCVSS(score)

		var desc string
		for _, d := range v.CVE.Descriptions {
			if d.Lang == "en" {
				desc = d.Value
				break
			}
		}

		// 关键词检索有噪音：版本出现在描述里时置信度更高
		confidence := 0.6
		if version != "" && matchesService(desc, version) {
			confidence = 0.8
		}

		results = append(results, types.IntelResult{
			Source:     s.name,
			CVEID:      v.CVE.ID,
			Severity:   sev,
			Confidence: confidence,
			Priority:   types.RankPriority(sev, false, false),
			Metadata: map[string]any{
				"cvss_score":  score,
				"description": desc,
			},
		})
	}

	return results, nil
}
