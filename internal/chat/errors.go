package chat

import "errors"

// 协议层错误分类，统一映射为 ack 里的 statusCode 与提示图标。
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("chat full")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInternal         = errors.New("internal error")
)

const (
	iconWarn   = "fa-solid fa-triangle-exclamation"
	iconGhost  = "fa-solid fa-ghost"
	iconClosed = "fa-solid fa-door-closed"
)

// StatusCode 返回错误分类对应的 HTTP 风格状态码。
func StatusCode(kind error) int {
	switch {
	case errors.Is(kind, ErrInvalidInput):
		return 400
	case errors.Is(kind, ErrCapacityExceeded):
		return 401
	case errors.Is(kind, ErrNotFound):
		return 404
	case errors.Is(kind, ErrStoreUnavailable):
		return 502
	default:
		return 500
	}
}

func icon(kind error) string {
	switch {
	case errors.Is(kind, ErrCapacityExceeded):
		return iconClosed
	case errors.Is(kind, ErrNotFound):
		return iconGhost
	default:
		return iconWarn
	}
}
