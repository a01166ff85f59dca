package twitter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the caller-facing classification of a failed provider call.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindAuthenticationFailed
	KindClient
	KindTransient
	KindMockDisabled
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindClient:
		return "client_error"
	case KindTransient:
		return "transient_unavailable"
	case KindMockDisabled:
		return "mock_disabled"
	default:
		return "unknown"
	}
}

// Error is what the Executor hands back for every provider failure except
// cancellation, which is returned untouched.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the package sentinels by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Message == sentinelMessage(t.Kind) && t.Kind == e.Kind
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NewClientError reports a request rejected before or by the provider.
func NewClientError(message string) error {
	return newError(KindClient, message, nil)
}

func sentinelMessage(k Kind) string {
	switch k {
	case KindRateLimited:
		return "rate limit reached"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindClient:
		return "provider rejected the request"
	case KindTransient:
		return "service temporarily unavailable"
	case KindMockDisabled:
		return "operation disabled in mock mode"
	}
	return ""
}

var (
	ErrRateLimited          = &Error{Kind: KindRateLimited, Message: sentinelMessage(KindRateLimited)}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed, Message: sentinelMessage(KindAuthenticationFailed)}
	ErrClient               = &Error{Kind: KindClient, Message: sentinelMessage(KindClient)}
	ErrTransient            = &Error{Kind: KindTransient, Message: sentinelMessage(KindTransient)}
	ErrMockDisabled         = &Error{Kind: KindMockDisabled, Message: sentinelMessage(KindMockDisabled)}
)

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// IsCancellation reports whether err is a shutdown signal that business
// logic must never swallow.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Condition is the provider-level reason a call failed, before policy is
// applied.
type Condition int

const (
	ConditionGeneric Condition = iota
	ConditionCanceled
	ConditionRateLimited
	ConditionUnauthorized
	ConditionAccountLocked
	ConditionBadRequest
	ConditionForbidden
	ConditionNotFound
	ConditionTimeout
	ConditionServerError
)

func (c Condition) String() string {
	return [...]string{
		"generic", "canceled", "rate_limited", "unauthorized", "account_locked",
		"bad_request", "forbidden", "not_found", "timeout", "server_error",
	}[c]
}

// ProviderError lets a Provider report its condition explicitly instead of
// through message text.
type ProviderError struct {
	Condition Condition
	Message   string
}

func (e *ProviderError) Error() string { return e.Message }

var statusPattern = regexp.MustCompile(`response status (\d{3})`)

// Classify maps a raw provider error to a Condition. The scraper reports
// HTTP failures as "response status NNN ..." strings.
func Classify(err error) Condition {
	if err == nil {
		return ConditionGeneric
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Condition
	}

	if errors.Is(err, context.Canceled) {
		return ConditionCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ConditionTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ConditionTimeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return ConditionRateLimited
	case strings.Contains(msg, "locked"), strings.Contains(msg, "suspended"):
		return ConditionAccountLocked
	}

	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 429:
			return ConditionRateLimited
		case code == 401:
			return ConditionUnauthorized
		case code == 403:
			return ConditionForbidden
		case code == 404:
			return ConditionNotFound
		case code == 408 || code == 504:
			return ConditionTimeout
		case code >= 500:
			return ConditionServerError
		case code >= 400:
			return ConditionBadRequest
		}
	}

	switch {
	case strings.Contains(msg, "not logged in"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "could not authenticate"):
		return ConditionUnauthorized
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return ConditionTimeout
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no tweet"):
		return ConditionNotFound
	}

	return ConditionGeneric
}

// translate applies the non-auth half of the executor policy.
func translate(cond Condition, err error) error {
	switch cond {
	case ConditionRateLimited:
		return newError(KindRateLimited, "Rate limit reached", err)
	case ConditionTimeout, ConditionServerError:
		return newError(KindTransient, "Service temporarily unavailable", err)
	case ConditionUnauthorized:
		return newError(KindAuthenticationFailed, fmt.Sprintf("Authentication failed: %v", err), err)
	default:
		return newError(KindClient, err.Error(), err)
	}
}
