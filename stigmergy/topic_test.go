package stigmergy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/swarmintel/transport"
)

func TestTargetHash(t *testing.T) {
	h := TargetHash("10.0.0.5:443")
	assert.Len(t, h, 8)
	assert.Regexp(t, "^[0-9a-f]{8}$", h)

	// 确定性：全群体对同一目标推导出同一主题
	assert.Equal(t, h, TargetHash("10.0.0.5:443"))
	assert.Equal(t, h, TargetHash("  10.0.0.5:443  "), "哈希前去空白")
	assert.Equal(t, TargetHash("HOST.Example.COM"), TargetHash("host.example.com"), "哈希前转小写")

	assert.NotEqual(t, h, TargetHash("10.0.0.6:443"))
}

func TestTopic(t *testing.T) {
	topic := Topic("findings", "10.0.0.5:443", "sqli")
	assert.Equal(t, "findings:"+TargetHash("10.0.0.5:443")+":sqli", topic)

	// 推导出的主题必须通过频道名称校验
	assert.NoError(t, transport.ValidateChannel(topic))
}
