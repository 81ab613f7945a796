package llm

import (
	"strings"

	"github.com/Olorin-ai-git/Bayit-Plus-sub005/internal/errors"
)

// ClassifyProviderError maps unrecoverable provider failures onto the
// provider error kinds that propagate out of an investigation. Anything
// transient or ambiguous is returned unchanged so callers can degrade.
func ClassifyProviderError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context_length_exceeded") ||
		strings.Contains(msg, "maximum context"):
		return errors.ProviderError(errors.ProviderContextLengthExceeded, err, "context length exceeded")

	case strings.Contains(msg, "model not found") ||
		strings.Contains(msg, "does not exist or you do not have access"):
		return errors.ProviderError(errors.ProviderModelNotFound, err, "model not found")

	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return errors.ProviderError(errors.ProviderRateLimited, err, "provider rate limited")

	case strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "incorrect api key") ||
		strings.Contains(msg, "401"):
		return errors.ProviderError(errors.ProviderAPIError, err, "provider rejected credentials")

	default:
		return err
	}
}
