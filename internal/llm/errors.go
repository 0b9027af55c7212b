package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrorType categorizes LLM errors for user messaging.
type ErrorType string

const (
	ErrorTypeUnknown         ErrorType = "unknown"
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeOverloaded      ErrorType = "overloaded"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeBilling         ErrorType = "billing"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeFormat          ErrorType = "format"
	ErrorTypeMaxTokens       ErrorType = "max_tokens" // max_tokens exceeds model limit
	ErrorTypeCanceled        ErrorType = "canceled"
)

// UpstreamError is any failure talking to the LLM service:
// transport, HTTP status, or an unusable response.
type UpstreamError struct {
	Type       ErrorType
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("LLM request failed (%s, HTTP %d): %v", e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("LLM request failed (%s): %v", e.Type, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// newUpstreamError classifies err, using the HTTP status when there is one
// and falling back to message patterns in the error and the raw response body.
func newUpstreamError(err error, respBody []byte) *UpstreamError {
	ue := &UpstreamError{Type: ErrorTypeUnknown, Err: err}

	switch {
	case errors.Is(err, context.Canceled):
		ue.Type = ErrorTypeCanceled
		return ue
	case errors.Is(err, context.DeadlineExceeded):
		ue.Type = ErrorTypeTimeout
		return ue
	}

	msg := err.Error()
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		ue.StatusCode = apiErr.StatusCode
		// the SDK message embeds the request URL; classify on the body alone
		msg = string(respBody)
	}
	ue.Type = ClassifyStatus(ue.StatusCode)
	if ue.Type == ErrorTypeUnknown || ue.Type == ErrorTypeFormat {
		// 400s are refined by message: max_tokens and context overflow are both 400
		if t := ClassifyError(msg); t != ErrorTypeUnknown {
			ue.Type = t
		}
	}
	return ue
}

// ClassifyStatus maps an HTTP status code to an error type.
func ClassifyStatus(status int) ErrorType {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypeAuth
	case http.StatusPaymentRequired:
		return ErrorTypeBilling
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusRequestEntityTooLarge:
		return ErrorTypeContextOverflow
	case http.StatusServiceUnavailable, 529:
		return ErrorTypeOverloaded
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorTypeFormat
	default:
		return ErrorTypeUnknown
	}
}

var (
	maxTokensRe1 = regexp.MustCompile(`max_tokens:\s*\d+\s*>\s*(\d+)`)
	maxTokensRe2 = regexp.MustCompile(`max_tokens\s+cannot exceed\s*(\d+)`)
)

// ParseMaxTokensLimit checks if a message indicates max_tokens exceeds the model limit.
// Returns (true, limit) if matched; limit is 0 when it could not be parsed.
// Matches patterns like:
//   - "max_tokens: 8192 > 4096, which is the maximum allowed"
//   - "max_tokens cannot exceed 4096"
func ParseMaxTokensLimit(msg string) (bool, int) {
	if msg == "" {
		return false, 0
	}
	lower := strings.ToLower(msg)
	for _, re := range []*regexp.Regexp{maxTokensRe1, maxTokensRe2} {
		if m := re.FindStringSubmatch(lower); len(m) > 1 {
			if limit, err := strconv.Atoi(m[1]); err == nil {
				return true, limit
			}
		}
	}
	if strings.Contains(lower, "max_tokens") && (strings.Contains(lower, "maximum") || strings.Contains(lower, "exceed")) {
		return true, 0
	}
	return false, 0
}

// IsMaxTokensMessage checks if a message indicates a max_tokens error.
func IsMaxTokensMessage(msg string) bool {
	isMaxTokens, _ := ParseMaxTokensLimit(msg)
	return isMaxTokens
}

// ClassifyError determines the error type from an error message.
// Returns ErrorTypeUnknown if the message doesn't match any known pattern.
func ClassifyError(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	// max_tokens and prompt length both arrive as invalid_request_error
	if IsMaxTokensMessage(msg) {
		return ErrorTypeMaxTokens
	}
	if IsContextOverflowMessage(msg) {
		return ErrorTypeContextOverflow
	}
	if IsRateLimitMessage(msg) {
		return ErrorTypeRateLimit
	}
	if IsOverloadedMessage(msg) {
		return ErrorTypeOverloaded
	}
	if IsBillingMessage(msg) {
		return ErrorTypeBilling
	}
	if IsAuthMessage(msg) {
		return ErrorTypeAuth
	}
	if IsTimeoutMessage(msg) {
		return ErrorTypeTimeout
	}
	if IsFormatMessage(msg) {
		return ErrorTypeFormat
	}
	return ErrorTypeUnknown
}

// FormatErrorForUser returns a one-line message for the console.
func FormatErrorForUser(msg string, errType ErrorType) string {
	switch errType {
	case ErrorTypeContextOverflow:
		return "Context overflow: the conversation is too large for the model."
	case ErrorTypeRateLimit:
		return "Rate limited - too many requests. Please wait a moment and try again."
	case ErrorTypeOverloaded:
		return "The AI service is temporarily overloaded. Please try again in a moment."
	case ErrorTypeAuth:
		return "Authentication failed. Check ANTHROPIC_API_KEY."
	case ErrorTypeBilling:
		return "Billing issue with the AI provider. Check your account credits/plan."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeFormat:
		return fmt.Sprintf("The AI service rejected the request: %s", msg)
	case ErrorTypeMaxTokens:
		return "max_tokens exceeds the model's output limit. Lower --max-tokens."
	case ErrorTypeCanceled:
		return "Request canceled."
	default:
		return fmt.Sprintf("LLM error: %s", msg)
	}
}

// UserMessage formats any error for the console, classifying upstream errors.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return FormatErrorForUser(ue.Err.Error(), ue.Type)
	}
	return err.Error()
}

// containsAny reports whether the lowercased msg contains any of patterns.
func containsAny(msg string, patterns ...string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsContextOverflowMessage checks if an error message indicates context overflow.
func IsContextOverflowMessage(msg string) bool {
	return containsAny(msg, "prompt is too long", "request_too_large")
}

// IsRateLimitMessage checks if a message indicates rate limiting.
func IsRateLimitMessage(msg string) bool {
	return containsAny(msg, "rate_limit_error")
}

// IsOverloadedMessage checks if a message indicates the service is overloaded.
func IsOverloadedMessage(msg string) bool {
	return containsAny(msg, "overloaded_error")
}

// IsAuthMessage checks if a message indicates authentication failure.
func IsAuthMessage(msg string) bool {
	return containsAny(msg, "authentication_error", "permission_error")
}

// IsBillingMessage checks if a message indicates billing/payment issues.
func IsBillingMessage(msg string) bool {
	return containsAny(msg, "credit balance", "billing_error")
}

// IsTimeoutMessage checks if a transport error message indicates a timeout.
func IsTimeoutMessage(msg string) bool {
	return containsAny(msg, "deadline exceeded", "timed out", "timeout_error")
}

// IsFormatMessage checks if a message indicates invalid request format.
func IsFormatMessage(msg string) bool {
	return containsAny(msg, "invalid_request_error", "roles must alternate")
}
