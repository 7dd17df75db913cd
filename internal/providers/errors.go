package providers

import "strings"

type ErrorType string

const (
	ErrorFatal     ErrorType = "fatal"
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

// ClassifyError maps a provider error to a retry class by message text.
// Providers surface HTTP bodies verbatim, so substrings are the only signal
// shared by every backend.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "insufficient credits"), strings.Contains(e, "payment required"):
		return ErrorFatal
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "resource_exhausted"):
		return ErrorQuota
	case strings.Contains(e, "rate limit"), strings.Contains(e, "rate_limit"), strings.Contains(e, "429"),
		strings.Contains(e, "too many requests"):
		return ErrorRate
	case strings.Contains(e, "context length"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "network connection lost"), strings.Contains(e, " 502"), strings.Contains(e, "code 502"),
		strings.Contains(e, "connection reset"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Retryable reports whether a backoff wait is worthwhile for t.
func (t ErrorType) Retryable() bool {
	return t == ErrorRate || t == ErrorTransient
}
