package validate

import (
	"regexp"
	"unicode/utf8"
)

var (
	keyPattern    = regexp.MustCompile(`^[a-z0-9]{2}-[a-z0-9]{3}-[a-z0-9]{2}$`)
	avatarPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Key 校验聊天 key 是否为合法的 xx-xxx-xx 格式。
func Key(key string) bool {
	return keyPattern.MatchString(key)
}

// Name 校验昵称：2-20 个可见字符。
func Name(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 20 {
		return false
	}
	for _, r := range name {
		if r == '\n' || r == '\r' || r == '\t' {
			return false
		}
	}
	return true
}

// Avatar 校验头像标识：非空且只含字母数字、下划线与连字符。
func Avatar(avatar string) bool {
	return len(avatar) > 0 && len(avatar) <= 32 && avatarPattern.MatchString(avatar)
}

// MaxUsers 校验房间容量上限。
func MaxUsers(n int) bool {
	return n >= 2 && n <= 10
}
