package common

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind buckets crawl failures by how the scheduler should respond
type ErrorKind string

const (
	// ErrKindTransientNetwork covers timeouts, resets and 5xx responses.
	// Retryable with backoff.
	ErrKindTransientNetwork ErrorKind = "transient_network"

	// ErrKindAccessBlocked covers 403, 429 and captcha interstitials.
	// Retryable after a long cooldown.
	ErrKindAccessBlocked ErrorKind = "access_blocked"

	// ErrKindStructuralMismatch means the page loaded but its shape no
	// longer matches expectations. Retrying will not help.
	ErrKindStructuralMismatch ErrorKind = "structural_mismatch"

	// ErrKindBrowserCrash means the browser tab or process died mid-task.
	// Retryable once the pool replaces the instance.
	ErrKindBrowserCrash ErrorKind = "browser_crash"

	// ErrKindParseFailure means fetched content could not be interpreted.
	// Retrying the same content is pointless.
	ErrKindParseFailure ErrorKind = "parse_failure"

	// ErrKindValidation means the task itself was malformed. Never retried.
	ErrKindValidation ErrorKind = "validation"

	// ErrKindUnknown is the fallback bucket, treated as transient
	ErrKindUnknown ErrorKind = "unknown"
)

// CrawlError is a classified task failure
type CrawlError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *CrawlError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// NewCrawlError wraps err with an explicit kind and operation name
func NewCrawlError(kind ErrorKind, op string, err error) *CrawlError {
	return &CrawlError{Kind: kind, Op: op, Err: err}
}

func NewTransientError(op string, err error) *CrawlError {
	return NewCrawlError(ErrKindTransientNetwork, op, err)
}

func NewBlockedError(op string, err error) *CrawlError {
	return NewCrawlError(ErrKindAccessBlocked, op, err)
}

func NewStructuralError(op string, err error) *CrawlError {
	return NewCrawlError(ErrKindStructuralMismatch, op, err)
}

func NewBrowserCrashError(op string, err error) *CrawlError {
	return NewCrawlError(ErrKindBrowserCrash, op, err)
}

func NewParseError(op string, err error) *CrawlError {
	return NewCrawlError(ErrKindParseFailure, op, err)
}

func NewValidationError(op string, err error) *CrawlError {
	return NewCrawlError(ErrKindValidation, op, err)
}

// KindOf extracts the kind from a classified error, sniffing common
// unclassified failures into their buckets
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}

	var crawlErr *CrawlError
	if errors.As(err, &crawlErr) {
		return crawlErr.Kind
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrKindTransientNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "status 403", "status 429", "captcha", "access denied", "forbidden", "too many requests"):
		return ErrKindAccessBlocked
	case containsAny(msg, "context deadline exceeded", "connection refused", "connection reset", "no such host", "timeout", "status 502", "status 503", "status 504"):
		return ErrKindTransientNetwork
	case containsAny(msg, "chrome failed", "target crashed", "browser closed", "websocket", "session closed"):
		return ErrKindBrowserCrash
	case containsAny(msg, "could not parse", "invalid json", "unexpected end of", "selector not found"):
		return ErrKindParseFailure
	}
	return ErrKindUnknown
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
