package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🔍 Nuclei 模板扫描器索引
// =============================================================================

// nucleiTemplate 模板索引条目（JSON Lines 格式，每行一个模板）
type nucleiTemplate struct {
	ID   string `json:"ID"`
	Info struct {
		Name        string `json:"Name"`
		Severity    string `json:"Severity"`
		Description string `json:"Description"`
	} `json:"Info"`
	FilePath string `json:"file_path"`
}

// NucleiSource 模板扫描器索引源
// 命中表示存在可直接运行的检测模板，不代表有利用代码
type NucleiSource struct {
	httpSource
}

// NewNucleiSource 创建 Nuclei 源
func NewNucleiSource(cfg config.SourceConfig) *NucleiSource {
	return &NucleiSource{httpSource: newHTTPSource("nuclei", cfg)}
}

// Name 实现 intel.Source
func (s *NucleiSource) Name() string { return s.name }

// Query 实现 intel.Source
// 索引是 JSON Lines，逐行解析；坏行跳过不影响其余行
func (s *NucleiSource) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrSourceError, "fetch failed").
			WithSource(s.name).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.ErrSourceError, "unexpected status").WithSource(s.name)
	}

	var results []types.IntelResult
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var tmpl nucleiTemplate
		if err := json.Unmarshal([]byte(line), &tmpl); err != nil {
			continue
		}
		if !matchesService(tmpl.Info.Name, service) && !matchesService(tmpl.Info.Description, service) {
			continue
		}

		sev := types.Severity(strings.ToLower(tmpl.Info.Severity))
		if !sev.Valid() {
			sev = types.SeverityInfo
		}

		var cveID string
		if strings.HasPrefix(strings.ToUpper(tmpl.ID), "CVE-") {
			cveID = strings.ToUpper(tmpl.ID)
		}

		results = append(results, types.IntelResult{
			Source:      s.name,
			CVEID:       cveID,
			Severity:    sev,
			Confidence:  0.6,
			Priority:    types.RankPriority(sev, false, false),
			ExploitPath: "nuclei-templates/" + tmpl.FilePath,
			Metadata: map[string]any{
				"template_id": tmpl.ID,
				"name":        tmpl.Info.Name,
			},
		})

		if len(results) >= 20 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		// 已解析的结果仍然有效
		if len(results) > 0 {
			return results, nil
		}
		return nil, err
	}

	return results, nil
}
