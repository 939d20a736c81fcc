package statsclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBackend is returned when the service answers success=false.
	ErrBackend = errors.New("statistics service reported failure")

	// ErrUnauthorized is matched by any 401 or 403 response.
	ErrUnauthorized = errors.New("unauthorized")
)

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match rejected credentials.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}
