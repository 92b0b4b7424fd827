// Package apperr 定义各服务共享的错误分类。
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport 表示网络不可达、连接失败等传输层错误。
	ErrTransport = errors.New("transport error")
	// ErrProvider 表示上游服务返回非 2xx 或请求超时。
	ErrProvider = errors.New("provider error")
	// ErrEmptyResponse 表示上游成功返回但没有可用内容。
	ErrEmptyResponse = errors.New("empty response")
	// ErrDecode 表示响应体无法解析。
	ErrDecode = errors.New("decode error")
	// ErrInvalidState 表示操作与当前状态机不匹配。
	ErrInvalidState = errors.New("invalid state")
	// ErrResource 表示共享资源（例如音频设备）无法获取。
	ErrResource = errors.New("resource unavailable")
)

// ProviderError 携带上游服务的状态码与错误描述。
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Timeout    bool
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out", e.Provider)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Is 让 errors.Is(err, ErrProvider) 对 ProviderError 成立。
func (e *ProviderError) Is(target error) bool {
	return target == ErrProvider
}

// Transport 包装传输层错误。
func Transport(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrTransport, err)
}

// Decode 包装解析错误。
func Decode(provider string, err error) error {
	return fmt.Errorf("%s: %w: %v", provider, ErrDecode, err)
}

// Empty 返回指定服务的空响应错误。
func Empty(provider string) error {
	return fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
}

// Kind 返回错误的分类名称，未识别的错误返回 "unknown"。
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrProvider):
		return "provider"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrResource):
		return "resource"
	default:
		return "unknown"
	}
}
