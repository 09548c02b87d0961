// internal/reconcile/errors.go
//
// Operation-boundary error taxonomy.  Callers match with errors.Is /
// errors.As; the HTTP layer maps each class onto a status code.  Upstream
// failures are not redefined here—*panel.APIError and panel.ErrUnavailable
// pass through untouched.
package reconcile

import "errors"

var (
	// ErrNotFound covers both a missing row and a soft-deleted one.  A
	// deleted server is indistinguishable from an absent server on
	// purpose: its terminal state leaks nothing to former co-owners.
	ErrNotFound = errors.New("server not found")

	// ErrForbidden means the actor neither owns the server nor is admin.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyInState marks a no-op transition (suspending a suspended
	// server).  Distinct from ErrNotFound so callers can render "nothing
	// to do" instead of an error page.
	ErrAlreadyInState = errors.New("server already in requested state")

	// ErrNotProvisioned marks an operational call against a server whose
	// panel identity has not been assigned yet (e.g. a fresh trial).
	ErrNotProvisioned = errors.New("server not provisioned on panel")
)

// ValidationError reports malformed caller input, e.g. an empty console
// command or an unknown power signal.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }
