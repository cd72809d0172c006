package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🧪 情报源测试
// =============================================================================

func sourceConfig(baseURL string) config.SourceConfig {
	return config.SourceConfig{
		Enabled: true,
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}
}

// ----- KEV -----

const kevBody = `{
  "catalogVersion": "2026.08.01",
  "count": 2,
  "vulnerabilities": [
    {
      "cveID": "CVE-2021-41773",
      "vendorProject": "Apache",
      "product": "HTTP Server",
      "vulnerabilityName": "Apache HTTP Server Path Traversal",
      "requiredAction": "Apply updates",
      "knownRansomwareCampaignUse": "Known"
    },
    {
      "cveID": "CVE-2023-1234",
      "vendorProject": "OtherVendor",
      "product": "OtherProduct",
      "vulnerabilityName": "Unrelated",
      "requiredAction": "Apply updates",
      "knownRansomwareCampaignUse": "Unknown"
    }
  ]
}`

func TestKEVSource_Query(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(kevBody))
	}))
	defer srv.Close()

	src := NewKEVSource(sourceConfig(srv.URL))
	assert.Equal(t, "kev", src.Name())

	results, err := src.Query(context.Background(), "Apache", "2.4.49")
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "CVE-2021-41773", r.CVEID)
	assert.Equal(t, types.SeverityCritical, r.Severity)
	assert.True(t, r.ExploitAvailable)
	assert.Equal(t, 1, r.Priority, "已知被利用即最高优先级")
	assert.NoError(t, r.Validate())

	// 目录在内存缓存，第二次查询不再拉取
	_, err = src.Query(context.Background(), "Apache", "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestKEVSource_StaleCatalogFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(kevBody))
	}))
	defer srv.Close()

	src := NewKEVSource(sourceConfig(srv.URL))
	src.maxAge = 0 // 每次查询都触发重新拉取

	_, err := src.Query(context.Background(), "Apache", "")
	require.NoError(t, err)

	// 上游故障时退回旧目录
	fail.Store(true)
	results, err := src.Query(context.Background(), "Apache", "")
	require.NoError(t, err, "略旧的目录好过没有")
	assert.Len(t, results, 1)
}

func TestKEVSource_FetchFailureWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewKEVSource(sourceConfig(srv.URL))
	_, err := src.Query(context.Background(), "Apache", "")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrSourceError))
}

// ----- NVD -----

const nvdBody = `{
  "totalResults": 1,
  "vulnerabilities": [
    {
      "cve": {
        "id": "CVE-2021-44228",
        "descriptions": [
          {"lang": "en", "value": "Apache Log4j2 2.14.1 JNDI features..."}
        ],
        "metrics": {
          "cvssMetricV31": [
            {"cvssData": {"baseScore": 10.0, "baseSeverity": "CRITICAL"}}
          ]
        }
      }
    }
  ]
}`

func TestNVDSource_Query(t *testing.T) {
	var gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("apiKey")
		assert.Contains(t, r.URL.RawQuery, "keywordSearch=")
		w.Write([]byte(nvdBody))
	}))
	defer srv.Close()

	cfg := sourceConfig(srv.URL)
	cfg.APIKey = "test-key"
	src := NewNVDSource(cfg)

	results, err := src.Query(context.Background(), "log4j", "2.14.1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "test-key", gotAPIKey)

	r := results[0]
	assert.Equal(t, "CVE-2021-44228", r.CVEID)
	assert.Equal(t, types.SeverityCritical, r.Severity)
	assert.Equal(t, 2, r.Priority)
	assert.Equal(t, 0.8, r.Confidence, "版本出现在描述里时置信度更高")
	assert.NoError(t, r.Validate())
}

func TestNVDSource_LowConfidenceWithoutVersionMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nvdBody))
	}))
	defer srv.Close()

	src := NewNVDSource(sourceConfig(srv.URL))
	results, err := src.Query(context.Background(), "log4j", "9.9.9")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.6, results[0].Confidence)
}

// ----- Exploit-DB -----

const exploitdbBody = `{
  "total": 3,
  "matches": [
    {"id": "50383", "description": "Apache HTTP Server 2.4.49 - Path Traversal RCE", "type": "webapps", "platform": "multiple", "verified": true, "cve": ["CVE-2021-41773"]},
    {"id": "50406", "description": "Apache 2.4.50 - Remote Code Execution", "type": "webapps", "platform": "multiple", "verified": false, "cve": ["CVE-2021-42013"]},
    {"id": "12345", "description": "Apache something", "type": "remote", "platform": "linux", "verified": false, "cve": []}
  ]
}`

func TestExploitDBSource_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "query=")
		w.Write([]byte(exploitdbBody))
	}))
	defer srv.Close()

	src := NewExploitDBSource(sourceConfig(srv.URL))
	results, err := src.Query(context.Background(), "Apache", "2.4.49")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 已验证 4，关联 CVE 5，其余 6
	assert.Equal(t, 4, results[0].Priority)
	assert.Equal(t, 0.85, results[0].Confidence)
	assert.Equal(t, "exploitdb/50383", results[0].ExploitPath)
	assert.Equal(t, 5, results[1].Priority)
	assert.Equal(t, 6, results[2].Priority)

	for _, r := range results {
		assert.True(t, r.ExploitAvailable)
		assert.NoError(t, r.Validate())
	}
}

// ----- Nuclei -----

const nucleiBody = `{"ID":"CVE-2021-41773","Info":{"Name":"Apache 2.4.49 Path Traversal","Severity":"high","Description":"Path traversal in Apache HTTP Server"},"file_path":"cves/2021/CVE-2021-41773.yaml"}
{bad json line}
{"ID":"tech-detect","Info":{"Name":"Apache Detection","Severity":"bogus","Description":"Detects Apache"},"file_path":"technologies/apache.yaml"}
{"ID":"CVE-2020-0001","Info":{"Name":"Unrelated Windows Bug","Severity":"critical","Description":"Nothing here"},"file_path":"cves/2020/CVE-2020-0001.yaml"}
`

func TestNucleiSource_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(nucleiBody))
	}))
	defer srv.Close()

	src := NewNucleiSource(sourceConfig(srv.URL))
	results, err := src.Query(context.Background(), "Apache", "")
	require.NoError(t, err)
	// 坏行跳过；不匹配的模板过滤；匹配的两条保留
	require.Len(t, results, 2)

	assert.Equal(t, "CVE-2021-41773", results[0].CVEID)
	assert.Equal(t, types.SeverityHigh, results[0].Severity)
	assert.Equal(t, "nuclei-templates/cves/2021/CVE-2021-41773.yaml", results[0].ExploitPath)

	// 非法 severity 归为 info，模板 ID 非 CVE 前缀时无 CVE 编号
	assert.Empty(t, results[1].CVEID)
	assert.Equal(t, types.SeverityInfo, results[1].Severity)

	for _, r := range results {
		assert.NoError(t, r.Validate())
	}
}

// ----- Metasploit -----

const msfBody = `{
  "exploit_apache_normalize": {
    "name": "Apache 2.4.49/2.4.50 Traversal RCE",
    "fullname": "exploit/multi/http/apache_normalize_path_rce",
    "description": "Exploits path traversal in Apache HTTP Server",
    "rank": 600,
    "type": "exploit",
    "references": ["URL,https://example.com", "CVE,2021-42013"]
  },
  "auxiliary_apache_scanner": {
    "name": "Apache Scanner",
    "fullname": "auxiliary/scanner/http/apache_version",
    "description": "Scans Apache versions",
    "rank": 300,
    "type": "auxiliary",
    "references": []
  },
  "exploit_apache_low": {
    "name": "Apache Old Bug",
    "fullname": "exploit/unix/webapp/apache_old",
    "description": "Apache legacy exploit",
    "rank": 200,
    "type": "exploit",
    "references": ["CVE-2010-0001"]
  }
}`

func TestMetasploitSource_Query(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(msfBody))
	}))
	defer srv.Close()

	src := NewMetasploitSource(sourceConfig(srv.URL))
	results, err := src.Query(context.Background(), "apache", "")
	require.NoError(t, err)
	// auxiliary 类型不算利用
	require.Len(t, results, 2)

	byPath := map[string]types.IntelResult{}
	for _, r := range results {
		byPath[r.ExploitPath] = r
		assert.True(t, r.ExploitAvailable)
		assert.NoError(t, r.Validate())
	}

	high := byPath["exploit/multi/http/apache_normalize_path_rce"]
	assert.Equal(t, 4, high.Priority, "rank >= 500 视为可靠利用")
	assert.Equal(t, 0.85, high.Confidence)
	assert.Equal(t, "CVE-2021-42013", high.CVEID, `目录里 "CVE,..." 格式要规范化`)

	low := byPath["exploit/unix/webapp/apache_old"]
	assert.Equal(t, 6, low.Priority)
	assert.Equal(t, "CVE-2010-0001", low.CVEID)
}

// ----- 共享辅助 -----

func TestSeverityFromCVSS(t *testing.T) {
	assert.Equal(t, types.SeverityCritical, severityFromCVSS(9.8))
	assert.Equal(t, types.SeverityHigh, severityFromCVSS(7.5))
	assert.Equal(t, types.SeverityMedium, severityFromCVSS(5.0))
	assert.Equal(t, types.SeverityLow, severityFromCVSS(2.1))
	assert.Equal(t, types.SeverityInfo, severityFromCVSS(0))
}

func TestMatchesService(t *testing.T) {
	assert.True(t, matchesService("Apache HTTP Server", "apache"))
	assert.True(t, matchesService("apache httpd", "  Apache  "))
	assert.False(t, matchesService("nginx", "apache"))
}

func TestHTTPSource_HealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	src := newHTTPSource("probe", sourceConfig(healthy.URL))
	assert.NoError(t, src.HealthCheck(context.Background()))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	src = newHTTPSource("probe", sourceConfig(broken.URL))
	assert.Error(t, src.HealthCheck(context.Background()))
}
