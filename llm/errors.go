package llm

import (
	"fmt"
	"strings"
)

// TransientError marks a failure worth retrying with backoff: network
// errors, 5xx responses, 429 rate limiting, or a call that exceeded its
// timeout.
type TransientError struct {
	Model string
	Err   error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("llm: transient failure calling %s: %v", e.Model, e.Err)
}
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure not worth retrying: bad auth, a
// malformed request, or a model that doesn't exist.
type PermanentError struct {
	Model string
	Err   error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("llm: permanent failure calling %s: %v", e.Model, e.Err)
}
func (e *PermanentError) Unwrap() error { return e.Err }

// Classify wraps err as Transient or Permanent by inspecting its message
// for known provider error shapes, grounded in the teacher's
// classifyProviderError (internal/agent/failover.go). Anything
// unrecognized defaults to transient, the safer side to retry on.
func Classify(model string, err error) error {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())
	switch {
	case containsAny(lower, "unauthorized", "invalid api key", "authentication", "401", "403"):
		return &PermanentError{Model: model, Err: err}
	case containsAny(lower, "billing", "payment required", "quota exceeded", "402"):
		return &PermanentError{Model: model, Err: err}
	case containsAny(lower, "model not found", "does not exist", "invalid request", "400"):
		return &PermanentError{Model: model, Err: err}
	case containsAny(lower, "timeout", "deadline exceeded", "context deadline"):
		return &TransientError{Model: model, Err: err}
	case containsAny(lower, "rate limit", "rate_limit", "too many requests", "429"):
		return &TransientError{Model: model, Err: err}
	case containsAny(lower, "internal server", "server error", "500", "502", "503", "504"):
		return &TransientError{Model: model, Err: err}
	default:
		return &TransientError{Model: model, Err: err}
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
