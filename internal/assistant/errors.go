package assistant

import (
	"errors"
	"strings"
)

var (
	// ErrRateLimited indicates the model provider rejected the call for
	// quota or rate reasons.
	ErrRateLimited = errors.New("model rate limited")

	// ErrContextTooLarge indicates the conversation no longer fits the
	// model's context window.
	ErrContextTooLarge = errors.New("conversation exceeds model context")

	// ErrUnavailable covers transient provider failures.
	ErrUnavailable = errors.New("model unavailable")
)

// Provider SDKs surface these conditions as opaque wrapped errors, so
// classification falls back to substring matching on the error text.
var (
	rateLimitPatterns = []string{
		"rate limit",
		"quota",
		"429",
		"exhausted",
		"too many requests",
	}
	contextPatterns = []string{
		"context_length_exceeded",
		"context length",
		"token limit",
		"input too long",
		"exceeds the maximum",
	}
	unavailablePatterns = []string{
		"500",
		"502",
		"503",
		"504",
		"deadline exceeded",
		"connection refused",
		"unavailable",
		"overloaded",
	}
)

// Classify maps a raw provider error onto this package's sentinel errors.
// Unrecognized errors pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrContextTooLarge) || errors.Is(err, ErrUnavailable) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, p := range contextPatterns {
		if strings.Contains(msg, p) {
			return ErrContextTooLarge
		}
	}
	for _, p := range rateLimitPatterns {
		if strings.Contains(msg, p) {
			return ErrRateLimited
		}
	}
	for _, p := range unavailablePatterns {
		if strings.Contains(msg, p) {
			return ErrUnavailable
		}
	}
	return err
}
