// internal/panel/errors.go
//
// Typed failures for remote panel calls.  The caller-facing contract is
// small: a non-2xx response becomes *APIError carrying the remote status
// and body, a transport failure or timeout becomes ErrUnavailable, and
// nothing is ever retried inside this package.
package panel

import (
	"errors"
	"fmt"
)

// ErrUnavailable wraps network and timeout failures talking to the panel,
// distinct from a 4xx/5xx response the panel actually produced.
var ErrUnavailable = errors.New("panel unavailable")

// APIError is a non-2xx response from the panel.
type APIError struct {
	Op     string // short operation name, e.g. "server.suspend"
	Status int    // remote HTTP status
	Body   string // response body, truncated for logging
}

func (e *APIError) Error() string {
	return fmt.Sprintf("panel %s returned %d: %s", e.Op, e.Status, e.Body)
}

// IsNotFound reports whether err is a remote 404, the drift signal the
// reconciliation service cares about.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
