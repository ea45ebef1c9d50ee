package telegram

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a failed Bot API call as reported by Telegram.
type APIError struct {
	ErrorCode   int
	Description string
	// seconds to wait before retrying, set on 429 only
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram API error %d: %s (retry_after=%ds)", e.ErrorCode, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram API error %d: %s", e.ErrorCode, e.Description)
}

// IsBotBlocked reports whether the recipient blocked the bot. Such sends are not retried.
func IsBotBlocked(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == http.StatusForbidden
}

func IsRetryAfter(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == http.StatusTooManyRequests && apiErr.RetryAfter > 0
}

// GetRetryAfter returns the retry_after seconds of a 429, or 0.
func GetRetryAfter(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
