package analysis

import (
	"context"
	"errors"
	"net"
	"strings"

	"screenmind/api/internal/apperrors"
	"screenmind/api/internal/vision"
)

// Classify maps a backend failure onto the error taxonomy. Message substrings
// are checked first, in priority order; credential problems win over
// throttling, and throttling over timeouts. Matching is best-effort: "rate"
// also hits words like "generate".
func Classify(err error) *apperrors.Error {
	if err == nil {
		return nil
	}
	if ae, ok := apperrors.As(err); ok {
		return ae
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api_key") || strings.Contains(msg, "unauthorized"):
		return apperrors.InvalidCredential(err)
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate"):
		return apperrors.RateLimited(err)
	case strings.Contains(msg, "timeout"):
		return apperrors.Timeout(err)
	}

	var ve *vision.Error
	if errors.As(err, &ve) {
		switch ve.Kind {
		case vision.KindUnauthenticated:
			return apperrors.InvalidCredential(err)
		case vision.KindRateLimited:
			return apperrors.RateLimited(err)
		case vision.KindTimeout:
			return apperrors.Timeout(err)
		case vision.KindMalformedResponse:
			return apperrors.MalformedResponse(err)
		case vision.KindNetworkFailure:
			return apperrors.NetworkFailure(err)
		case vision.KindInvalidImage:
			return apperrors.InvalidImage(err)
		case vision.KindConfiguration:
			ae := apperrors.Misconfigured(ve.Provider, ve.Err)
			ae.Cause = err
			return ae
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Timeout(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperrors.Timeout(err)
	}
	return apperrors.Unclassified(err)
}
