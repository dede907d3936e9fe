package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
)

type Kind int

const (
	KindProvider Kind = iota
	KindUnauthenticated
	KindRateLimited
	KindTimeout
	KindMalformedResponse
	KindNetworkFailure
	KindInvalidImage
	KindConfiguration
)

// keyword is embedded in Error() so message-based classification agrees with Kind.
func (k Kind) keyword() string {
	switch k {
	case KindUnauthenticated:
		return "unauthorized"
	case KindRateLimited:
		return "rate limited"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed response"
	case KindNetworkFailure:
		return "network failure"
	case KindInvalidImage:
		return "invalid image"
	case KindConfiguration:
		return "configuration"
	default:
		return ""
	}
}

func (k Kind) String() string {
	if s := k.keyword(); s != "" {
		return s
	}
	return "provider"
}

// Error is a backend failure tagged with a coarse kind.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := e.Provider
	if kw := e.Kind.keyword(); kw != "" {
		msg += ": " + kw
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errEmptyPrompt   = errors.New("empty prompt")
	ErrEmptyResponse = errors.New("empty response")
)

type modelError struct{ model string }

func (m *modelError) Error() string { return fmt.Sprintf("model %q is not offered", m.model) }

// KindForStatus maps an HTTP status from a backend to a Kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthenticated
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindProvider
	}
}

// Wrap tags err for provider. status is the backend's HTTP status, 0 if none was received.
func Wrap(provider string, status int, err error) *Error {
	if err == nil {
		return nil
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	if status != 0 {
		return &Error{Kind: KindForStatus(status), Provider: provider, Status: status, Err: err}
	}
	return &Error{Kind: transportKind(err), Provider: provider, Err: stripURL(err)}
}

// stripURL drops the request URL from transport errors; it can carry the API key.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", strings.ToLower(ue.Op), ue.Err)
	}
	return err
}

func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return KindTimeout
		}
		return KindNetworkFailure
	}
	return KindProvider
}
