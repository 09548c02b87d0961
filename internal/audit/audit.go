// internal/audit/audit.go
//
// Append-only audit trail of user and server actions.
//
// Context
// -------
// Every mutating reconciliation operation appends one entry after its
// local commit.  Entries are never updated or deleted by this subsystem;
// retention is an operations concern.  When the request context carries
// *requestinfo.RequestInfo, the user-agent summary and country code are
// recorded alongside the action.
package audit

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/gamehost/internal/requestinfo"
)

// Symbolic action names.  Stable strings: dashboards and alerting key off
// them, so renames are schema migrations.
const (
	ActionServerSuspend   = "server.suspend"
	ActionServerUnsuspend = "server.unsuspend"
	ActionServerDelete    = "server.delete"
	ActionTrialProvision  = "server.trial_provision"
	ActionBackupRestore   = "backup.restore"
	ActionBackupDelete    = "backup.delete"
	ActionPowerSignal     = "server.power"
	ActionCommand         = "server.command"
	ActionFileWrite       = "server.file_write"
)

// Entry is one appended record.
type Entry struct {
	ActionID  string    `db:"action_id"`
	Details   string    `db:"details"`
	UserID    uint64    `db:"user_id"`
	ServerID  *uint64   `db:"server_id"`
	UserAgent *string   `db:"user_agent"`
	Country   *string   `db:"country"`
	CreatedAt time.Time `db:"created_at"`
}

// Sink accepts entries.  The reconciliation service depends on this
// interface so tests can capture appends in memory.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// Log writes entries into the `audit_log` table.
type Log struct {
	db *sqlx.DB
}

var _ Sink = (*Log)(nil)

// NewLog binds a Log to db.
func NewLog(db *sqlx.DB) *Log {
	return &Log{db: db}
}

// Append inserts one entry.  Request metadata is pulled from ctx when the
// Enrich middleware has run; otherwise those columns stay NULL.
func (l *Log) Append(ctx context.Context, e Entry) error {
	if ri := requestinfo.FromContext(ctx); ri != nil {
		if s := ri.Summary(); s != "" {
			e.UserAgent = &s
		}
		if ri.Geo.CountryISO != "" {
			c := ri.Geo.CountryISO
			e.Country = &c
		}
	}

	const q = `
	    INSERT INTO audit_log
	        (action_id, details, user_id, server_id, user_agent, country, created_at)
	    VALUES (?, ?, ?, ?, ?, ?, NOW())`
	_, err := l.db.ExecContext(ctx, q,
		e.ActionID, e.Details, e.UserID, e.ServerID, e.UserAgent, e.Country)
	return err
}
