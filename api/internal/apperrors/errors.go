package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a bucket of the analysis error taxonomy.
type Kind string

const (
	KindNotConfigured     Kind = "not_configured"
	KindInvalidCredential Kind = "invalid_credential"
	KindRateLimited       Kind = "rate_limited"
	KindTimeout           Kind = "timeout"
	KindMalformedResponse Kind = "malformed_response"
	KindNetworkFailure    Kind = "network_failure"
	KindUnclassified      Kind = "unclassified_provider_error"
	KindInvalidImage      Kind = "invalid_image"

	// KindParseFallback is never returned as an error; successful results carry it
	// as a degraded-success flag.
	KindParseFallback Kind = "parse_fallback"
)

// StatusCode is the HTTP status the API layer answers with for this kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindNotConfigured:
		return http.StatusServiceUnavailable
	case KindInvalidCredential:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindInvalidImage:
		return http.StatusBadRequest
	case KindMalformedResponse, KindNetworkFailure, KindUnclassified:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure. Message is meant for direct display.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NotConfigured(provider string) *Error {
	return &Error{
		Kind:    KindNotConfigured,
		Message: fmt.Sprintf("错误: AI模型未初始化，请检查API密钥设置 (当前提供商: %s)", provider),
	}
}

// Misconfigured is a not_configured error caused by the request itself (a model
// the provider does not offer, an empty prompt) rather than a missing key.
func Misconfigured(provider string, cause error) *Error {
	return &Error{
		Kind:    KindNotConfigured,
		Message: fmt.Sprintf("错误: AI配置无效 (当前提供商: %s) - %s", provider, causeText(cause)),
		Cause:   cause,
	}
}

func InvalidCredential(cause error) *Error {
	return &Error{Kind: KindInvalidCredential, Message: "错误: API密钥无效，请检查API密钥设置", Cause: cause}
}

func RateLimited(cause error) *Error {
	return &Error{Kind: KindRateLimited, Message: "错误: API配额已用完或调用频率过高，请稍后再试", Cause: cause}
}

func Timeout(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: "错误: 请求超时，请检查网络连接", Cause: cause}
}

func MalformedResponse(cause error) *Error {
	return &Error{Kind: KindMalformedResponse, Message: "错误: AI未返回有效响应", Cause: cause}
}

func NetworkFailure(cause error) *Error {
	return &Error{Kind: KindNetworkFailure, Message: "错误: 网络连接失败 - " + causeText(cause), Cause: cause}
}

func Unclassified(cause error) *Error {
	return &Error{Kind: KindUnclassified, Message: "错误: AI分析失败 - " + causeText(cause), Cause: cause}
}

func InvalidImage(cause error) *Error {
	return &Error{Kind: KindInvalidImage, Message: "错误: 无效的图片文件", Cause: cause}
}

func causeText(err error) string {
	if err == nil {
		return "未知错误"
	}
	return err.Error()
}

// As extracts a classified error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	ae, ok := As(err)
	return ok && ae.Kind == kind
}

// StatusCode extracts the HTTP status code from err, 500 when unclassified.
func StatusCode(err error) int {
	if ae, ok := As(err); ok {
		return ae.Kind.StatusCode()
	}
	return http.StatusInternalServerError
}
