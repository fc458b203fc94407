package gemini

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/genai"
)

// IsRetryable reports whether a failed Gemini call may succeed when repeated:
// rate limiting, request timeouts, server errors and network timeouts.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusRequestTimeout, apiErr.Code == http.StatusTooManyRequests:
			return true
		case apiErr.Code >= http.StatusInternalServerError:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
