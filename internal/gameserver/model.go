// internal/gameserver/model.go
//
// Authoritative local record of one hosted game server.
//
// The local row owns billing and ownership; the remote panel owns the
// running process.  Two nullable columns capture the remote identity:
//
//   - PanelID    – numeric id assigned by the panel once provisioned.
//   - PanelIdent – opaque identifier used in panel path segments.
//
// The pair is either both NULL (not yet provisioned) or both set, and it
// is set exactly once.  `DeletedAt` non-NULL means the server is logically
// gone: excluded from every listing and rejected by every lifecycle
// operation.
package gameserver

import "time"

// Server mirrors one row in the persistent `server` table.
type Server struct {
	ID         uint64     `db:"id"`
	OwnerID    uint64     `db:"owner_id"`
	ProductID  *uint64    `db:"product_id"` // NULL on legacy rows
	Name       string     `db:"name"`
	PanelID    *uint64    `db:"panel_id"`
	PanelIdent *string    `db:"panel_identifier"`
	Suspended  bool       `db:"suspended"` // local intent state
	Installed  bool       `db:"installed"` // remote provisioning completed
	DeletedAt  *time.Time `db:"deleted_at"`
	ExpiresAt  *time.Time `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// Deleted reports whether the row carries the soft-delete marker.
func (s *Server) Deleted() bool { return s.DeletedAt != nil }

// Provisioned reports whether the panel identity pair has been assigned.
func (s *Server) Provisioned() bool {
	return s.PanelID != nil && s.PanelIdent != nil
}
