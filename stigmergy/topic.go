package stigmergy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TargetHash 返回目标标识的 8 位十六进制摘要
// 目标在哈希前做小写与去空白规范化，保证全群体推导出同一主题
func TargetHash(target string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(target))))
	return hex.EncodeToString(sum[:])[:8]
}

// Topic 推导群体频道主题: <prefix>:<8-hex-target-hash>:<type>
func Topic(prefix, target, findingType string) string {
	return prefix + ":" + TargetHash(target) + ":" + findingType
}
