// internal/auth/identity.go
//
// Request-identity helper.
//
// Session issuance and credential verification live outside this repo; the
// web layer resolves the session however it likes and attaches the result
// here.  Downstream code (reconciliation service, audit sink) sees only
// this small struct.
//
// Usage
// -----
//     // Attach the resolved identity to the request context (after login).
//     ctx = auth.WithIdentity(ctx, auth.Identity{UserID: 123, Role: auth.RoleUser})
//
//     // Downstream code retrieves it.
//     id, ok := auth.FromContext(ctx)

package auth

import "context"

// Roles understood by the authorization checks.  RoleSystem is reserved for
// internal workers (expiry sweep) and carries admin privileges.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleSystem = "system"
)

// Identity is the acting principal for one request or job.  PanelToken is
// the optional per-user panel API credential forwarded with the session; it
// selects "as the user" authentication on panel client calls.
type Identity struct {
	UserID     uint64
	Role       string
	PanelToken string
}

// IsAdmin reports whether the identity may act on servers it does not own.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin || i.Role == RoleSystem
}

// System returns the identity used by internal workers.
func System() Identity { return Identity{Role: RoleSystem} }

// identityKey is unexported to avoid context-key collisions.
type identityKey struct{}

// WithIdentity returns a new context carrying the given identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext extracts the identity from ctx.  ok == false when no identity
// has been attached.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
