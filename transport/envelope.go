package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// ✉️ 签名消息封套
// =============================================================================

// Envelope 包裹群体频道上的每一条消息
// 签名覆盖 channel || canonical_json(payload)，密钥带外分发
// 接收方必须先验签再信任 Payload；验签失败的消息被丢弃并记录，
// 绝不投递给订阅回调
type Envelope struct {
	// ID 消息唯一标识（用于审计去重）
	ID string `json:"id"`

	// Payload 任意 JSON 负载
	Payload json.RawMessage `json:"payload"`

	// Signature channel+payload 的 HMAC-SHA256 十六进制签名
	Signature string `json:"signature"`

	// PublishedAt 发布时间戳
	PublishedAt time.Time `json:"published_at"`
}

// Seal 序列化 payload 并生成签名封套
// payload 经 encoding/json 规范化（map 键按字典序输出），
// 双方对同一 payload 计算出相同的签名基
func Seal(channel string, payload any, secret []byte) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Envelope{
		ID:          uuid.New().String(),
		Payload:     raw,
		Signature:   sign(channel, raw, secret),
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Verify 校验封套签名
// 使用常数时间比较，失败返回 SIGNATURE_MISMATCH
func (e *Envelope) Verify(channel string, secret []byte) error {
	expected := sign(channel, e.Payload, secret)
	if !hmac.Equal([]byte(expected), []byte(e.Signature)) {
		return types.NewError(types.ErrSignatureMismatch,
			fmt.Sprintf("signature mismatch on channel %q", channel))
	}
	return nil
}

// Decode 将已验签的负载反序列化到 dest
func (e *Envelope) Decode(dest any) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("decode envelope payload: %w", err)
	}
	return nil
}

// sign 计算 HMAC-SHA256(channel || payload) 的十六进制摘要
func sign(channel string, payload []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(channel))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
