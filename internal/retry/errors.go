package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Kind classifies a failed attempt.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindRateLimited    Kind = "rate_limited"
	KindServer         Kind = "server"
	KindNetwork        Kind = "network"
	KindMissingPayload Kind = "missing_payload"
	KindGeneration     Kind = "generation"

	KindBadInput Kind = "bad_input"
	KindPolicy   Kind = "policy"
	KindAuth     Kind = "auth"
	KindQuality  Kind = "quality"
	KindCanceled Kind = "canceled"
	KindFatal    Kind = "fatal"
)

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServer, KindNetwork, KindMissingPayload, KindGeneration:
		return true
	default:
		return false
	}
}

// NetworkClass reports whether the kind stems from the connection rather than the provider.
func (k Kind) NetworkClass() bool {
	return k == KindTimeout || k == KindNetwork
}

// Error is a classified failure of a single attempt.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a retryable failure of the given kind.
func Retryable(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: errMessage(err), Err: err}
}

// Fatal wraps err as a failure that must not be retried.
func Fatal(kind Kind, err error) *Error {
	if kind.Retryable() {
		kind = KindFatal
	}
	return &Error{Kind: kind, Message: errMessage(err), Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FromStatus classifies an HTTP response status. retryAfter is the raw
// Retry-After header value and may be empty.
func FromStatus(status int, message, retryAfter string) *Error {
	e := &Error{StatusCode: status, Message: message}
	switch {
	case status == 429:
		e.Kind = KindRateLimited
		e.RetryAfter = ParseRetryAfter(retryAfter, time.Now())
	case status == 408:
		e.Kind = KindTimeout
	case status >= 500:
		e.Kind = KindServer
		e.RetryAfter = ParseRetryAfter(retryAfter, time.Now())
	case status == 401 || status == 403:
		e.Kind = KindAuth
	case status >= 400:
		e.Kind = KindBadInput
	default:
		e.Kind = KindFatal
	}
	return e
}

// Classify turns an arbitrary error into a classified one. Unknown errors are fatal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Message: err.Error(), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: err.Error(), Err: err}
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: KindTimeout, Message: err.Error(), Err: err}
		}
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection reset") || strings.Contains(lower, "unexpected eof") {
		return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
	}
	return &Error{Kind: KindFatal, Message: err.Error(), Err: err}
}

// KindOf returns the classified kind of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// ParseRetryAfter reads a Retry-After value given either as seconds or an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Failure is the aggregated outcome of an exhausted or short-circuited execution.
type Failure struct {
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("failed after %d attempt(s): %v", f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// AttemptsOf returns the attempt count carried by a Failure, or 0.
func AttemptsOf(err error) int {
	var f *Failure
	if errors.As(err, &f) {
		return f.Attempts
	}
	return 0
}
