package transport

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/BaSui01/swarmintel/types"
)

// =============================================================================
// 🏷️ 频道名称校验
// =============================================================================
// 频道命名文法: segment(:segment)*
// segment 只允许字母、数字、连字符和下划线
// 校验失败在任何网络调用之前返回 CHANNEL_NAME 错误

var (
	channelNameRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+(:[A-Za-z0-9_-]+)*$`)
	channelPatternRe = regexp.MustCompile(`^[A-Za-z0-9_*-]+(:[A-Za-z0-9_*-]+)*$`)
)

// ValidateChannel 校验频道名称是否符合命名文法
func ValidateChannel(name string) error {
	if name == "" {
		return types.NewError(types.ErrChannelName, "channel name must not be empty")
	}
	if !channelNameRe.MatchString(name) {
		return types.NewError(types.ErrChannelName,
			fmt.Sprintf("invalid channel name %q: expected segment(:segment)*", name))
	}
	return nil
}

// ValidatePattern 校验订阅模式
// 与频道名称文法相同，但段内额外允许 '*' 通配符
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return types.NewError(types.ErrChannelName, "channel pattern must not be empty")
	}
	if !channelPatternRe.MatchString(pattern) {
		return types.NewError(types.ErrChannelName,
			fmt.Sprintf("invalid channel pattern %q", pattern))
	}
	return nil
}

// IsPattern 判断订阅目标是否为通配模式
func IsPattern(target string) bool {
	return strings.Contains(target, "*")
}
