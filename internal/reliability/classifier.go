package reliability

import (
	"context"
	"errors"
	"net"
)

// Error classes used as metric labels and log fields.
const (
	ClassNone        = "ok"
	ClassTimeout     = "timeout"
	ClassCanceled    = "canceled"
	ClassRateLimited = "rate_limited"
	ClassUnavailable = "unavailable"
	ClassClient      = "client_error"
	ClassOther       = "error"
)

// StatusCoder is implemented by upstream errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// IsRetryableHTTPStatus classifies transient HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps err onto a small fixed set of classes.
func Classify(err error) string {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTimeout
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return classifyStatus(sc.HTTPStatus())
	}
	return ClassOther
}

func classifyStatus(code int) string {
	switch {
	case code == 429:
		return ClassRateLimited
	case code == 408 || code == 504:
		return ClassTimeout
	case IsRetryableHTTPStatus(code):
		return ClassUnavailable
	case code >= 400 && code < 500:
		return ClassClient
	default:
		return ClassOther
	}
}
