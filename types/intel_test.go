package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankPriority(t *testing.T) {
	tests := []struct {
		name           string
		sev            Severity
		knownExploited bool
		exploitIndexed bool
		want           int
	}{
		{"已知被利用覆盖一切", SeverityLow, true, false, 1},
		{"已知被利用优先于利用索引", SeverityCritical, true, true, 1},
		{"利用索引", SeverityMedium, false, true, 4},
		{"critical", SeverityCritical, false, false, 2},
		{"high", SeverityHigh, false, false, 3},
		{"medium", SeverityMedium, false, false, 7},
		{"low", SeverityLow, false, false, 8},
		{"info", SeverityInfo, false, false, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RankPriority(tt.sev, tt.knownExploited, tt.exploitIndexed))
		})
	}
}

func TestSeverity_Valid(t *testing.T) {
	for _, s := range []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Severity("CRITICAL").Valid(), "严重级别区分大小写")
	assert.False(t, Severity("").Valid())
	assert.False(t, Severity("urgent").Valid())
}

func TestIntelResult_Validate(t *testing.T) {
	valid := IntelResult{
		Source:     "kev",
		CVEID:      "CVE-2021-44228",
		Severity:   SeverityCritical,
		Confidence: 0.9,
		Priority:   1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*IntelResult)
	}{
		{"缺少 source", func(r *IntelResult) { r.Source = "" }},
		{"非法 severity", func(r *IntelResult) { r.Severity = "bogus" }},
		{"confidence 超上界", func(r *IntelResult) { r.Confidence = 1.5 }},
		{"confidence 为负", func(r *IntelResult) { r.Confidence = -0.1 }},
		{"priority 为零", func(r *IntelResult) { r.Priority = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestQuery_Validate(t *testing.T) {
	assert.NoError(t, Query{Service: "Apache httpd", Version: "2.4.49"}.Validate())
	assert.NoError(t, Query{Service: "redis"}.Validate(), "version 可以为空")

	err := Query{Service: "   "}.Validate()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidQuery))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "apache httpd:2.4.49", NormalizeKey("  Apache Httpd ", "2.4.49"))
	assert.Equal(t, NormalizeKey("Redis", "7.0"), NormalizeKey("redis", "7.0"),
		"键推导必须大小写不敏感，否则广播与本地查询无法汇合")
	assert.Equal(t, "redis:", NormalizeKey("redis", ""))
	assert.Equal(t, NormalizeKey("nginx", "1.25"), Query{Service: "NGINX", Version: " 1.25 "}.Key())
}
