package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnreachable marks transport failures: DNS, refused connections,
// timeouts, or an open circuit breaker.
var ErrUnreachable = errors.New("remote unreachable")

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Code, msg)
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// IsRejected reports whether err is a non-2xx answer from the service.
func IsRejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// ShareRequest is the body of POST /itineraries/{id}/share.
type ShareRequest struct {
	Emails []string `json:"emails,omitempty"`
	Public bool     `json:"public"`
}

// ShareLink is the service's answer to a share request.
type ShareLink struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
