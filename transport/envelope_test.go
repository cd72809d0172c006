package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/swarmintel/types"
)

var testSecret = []byte("swarm-shared-secret")

func TestEnvelope_SealAndVerify(t *testing.T) {
	payload := map[string]any{"service": "redis", "version": "7.0"}

	env, err := Seal("findings:ab12cd34:cve", payload, testSecret)
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.NotEmpty(t, env.Signature)
	assert.False(t, env.PublishedAt.IsZero())

	assert.NoError(t, env.Verify("findings:ab12cd34:cve", testSecret))
}

func TestEnvelope_VerifyRejectsTampering(t *testing.T) {
	env, err := Seal("findings:ab12cd34:cve", map[string]string{"k": "v"}, testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		verify func() error
	}{
		{"篡改负载", func() error {
			tampered := *env
			tampered.Payload = []byte(`{"k":"evil"}`)
			return tampered.Verify("findings:ab12cd34:cve", testSecret)
		}},
		{"错误密钥", func() error {
			return env.Verify("findings:ab12cd34:cve", []byte("wrong-secret"))
		}},
		{"频道替换", func() error {
			// 签名绑定频道，搬到别的频道重放必须失败
			return env.Verify("findings:deadbeef:cve", testSecret)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verify()
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrSignatureMismatch))
		})
	}
}

func TestEnvelope_Decode(t *testing.T) {
	type finding struct {
		Service string `json:"service"`
		Count   int    `json:"count"`
	}

	env, err := Seal("findings:ab12cd34:cve", finding{Service: "nginx", Count: 3}, testSecret)
	require.NoError(t, err)

	var got finding
	require.NoError(t, env.Decode(&got))
	assert.Equal(t, finding{Service: "nginx", Count: 3}, got)

	env.Payload = []byte("{not json")
	assert.Error(t, env.Decode(&got))
}
