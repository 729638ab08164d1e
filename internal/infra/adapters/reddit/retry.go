package reddit

import (
	"net/http"
	"strconv"
	"time"
)

// StatusClass groups HTTP responses by what the client should do next.
type StatusClass int

const (
	StatusOK StatusClass = iota
	// StatusStop means retrying cannot help (404/410/401/403).
	StatusStop
	// StatusBackoff means wait and retry (429/5xx).
	StatusBackoff
	StatusUnknown
)

func ClassifyHTTPStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return StatusOK
	case code == http.StatusNotFound || code == http.StatusGone:
		return StatusStop
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return StatusStop
	case code == http.StatusTooManyRequests:
		return StatusBackoff
	case code >= 500:
		return StatusBackoff
	default:
		return StatusUnknown
	}
}

// CalculateBackoff doubles base per attempt and caps at max.
func CalculateBackoff(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
