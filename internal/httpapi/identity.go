// internal/httpapi/identity.go
//
// Identity resolvers.  Session and credential issuance live in the web
// front end; this daemon only consumes the result.  The default
// deployment terminates the session at the reverse proxy, which injects
// trusted headers for the authenticated user.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/yanizio/gamehost/internal/auth"
)

// Header names injected by the authenticating proxy.
const (
	headerUserID     = "X-User-Id"
	headerUserRole   = "X-User-Role"
	headerPanelToken = "X-Panel-Token"
)

// errNoSession is returned when the proxy headers are absent.
var errNoSession = errors.New("httpapi: no session headers")

// ProxyHeaderResolver trusts identity headers set by the front-end proxy.
// The listener must not be reachable except through that proxy.
func ProxyHeaderResolver() IdentityResolver {
	return func(r *http.Request) (auth.Identity, error) {
		rawID := r.Header.Get(headerUserID)
		if rawID == "" {
			return auth.Identity{}, errNoSession
		}
		userID, err := strconv.ParseUint(rawID, 10, 64)
		if err != nil || userID == 0 {
			return auth.Identity{}, errNoSession
		}

		role := r.Header.Get(headerUserRole)
		if role != auth.RoleAdmin {
			role = auth.RoleUser
		}
		return auth.Identity{
			UserID:     userID,
			Role:       role,
			PanelToken: r.Header.Get(headerPanelToken),
		}, nil
	}
}
