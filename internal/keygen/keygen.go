package keygen

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const keyChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// 形如 xx-xxx-xx 的三段式 key，便于口头传播。
var groupSizes = []int{2, 3, 2}

const maxAttempts = 16

var ErrExhausted = errors.New("keygen: could not generate a unique key")

func randomGroup(n int) (string, error) {
	max := big.NewInt(int64(len(keyChars)))
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		r, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = keyChars[r.Int64()]
	}
	return string(b), nil
}

// Random 生成一个随机 key，不做唯一性检查。
func Random() (string, error) {
	groups := make([]string, 0, len(groupSizes))
	for _, n := range groupSizes {
		g, err := randomGroup(n)
		if err != nil {
			return "", err
		}
		groups = append(groups, g)
	}
	return strings.Join(groups, "-"), nil
}

// Generate 重试生成直到 exists 报告该 key 未被占用。
func Generate(exists func(key string) (bool, error)) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		key, err := Random()
		if err != nil {
			return "", err
		}
		taken, err := exists(key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
	}
	return "", ErrExhausted
}
