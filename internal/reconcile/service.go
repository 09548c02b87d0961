// internal/reconcile/service.go
//
// Server lifecycle reconciliation.
//
/*
Context
--------
The local `server` row is authoritative for ownership and billing; the
remote panel is authoritative for what is actually running.  This service
is the only component allowed to move a server between Active, Suspended,
and Deleted, and the only writer of the panel-identity and soft-delete
columns.  It orders every mutating operation the same way:

  1. row lock (precondition check under SELECT … FOR UPDATE),
  2. remote panel call,
  3. local mutation, commit,
  4. best-effort status sync (degrades to OpResult.Warning),
  5. audit entry.

A remote failure at step 2 rolls back with zero local mutation, so the
local intent state never runs ahead of confirmed remote effect.  Mutating
operations run under context.WithoutCancel: once we have decided to call
the panel, a disconnecting client must not strand the local/remote pair
half-updated.

Status sync is read-mostly and deliberately unlocked; concurrent calls
for the same server are collapsed through singleflight and finish with
one atomic cache refresh.
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/gamehost/internal/audit"
	"github.com/yanizio/gamehost/internal/auth"
	"github.com/yanizio/gamehost/internal/gameserver"
	"github.com/yanizio/gamehost/internal/metrics"
	"github.com/yanizio/gamehost/internal/panel"
	"github.com/yanizio/gamehost/internal/product"
)

//
// Collaborator seams
//

// Store is the slice of the server repository this service depends on.
type Store interface {
	ByID(ctx context.Context, id uint64) (*gameserver.Server, error)
	WithLock(ctx context.Context, id uint64, fn func(tx gameserver.TxWriter, srv *gameserver.Server) error) error
	RefreshStatus(ctx context.Context, id uint64, suspended, installed bool) error
	CountActiveTrials(ctx context.Context, ownerID, productID uint64) (int, error)
	Insert(ctx context.Context, s *gameserver.Server) (uint64, error)
}

// PanelAPI is the slice of the panel client this service depends on.
type PanelAPI interface {
	GetServer(ctx context.Context, cred panel.Credential, ident string) (*panel.ServerState, error)
	SuspendServer(ctx context.Context, id uint64) error
	UnsuspendServer(ctx context.Context, id uint64) error
	DeleteServer(ctx context.Context, id uint64) error
	RestoreBackup(ctx context.Context, cred panel.Credential, ident, backupID string, truncate bool) error
	DeleteBackup(ctx context.Context, cred panel.Credential, ident, backupID string) error
	BackupDownloadURL(ctx context.Context, cred panel.Credential, ident, backupID string) (string, error)
	SendPowerSignal(ctx context.Context, cred panel.Credential, ident, signal string) error
	SendCommand(ctx context.Context, cred panel.Credential, ident, command string) error
	WriteFile(ctx context.Context, cred panel.Credential, ident, path string, contents []byte) error
}

// Products resolves trial plans.
type Products interface {
	TrialByGame(ctx context.Context, gameSlug string) (*product.Product, error)
}

//
// Results
//

// SyncResult reports the remote operational state after a status sync.
// ExistsOnPanel == false is the drift signal: the panel no longer knows
// the server, and an explicit admin action must decide what to do.
type SyncResult struct {
	ExistsOnPanel bool `json:"exists_on_panel"`
	Suspended     bool `json:"suspended"`
	Installed     bool `json:"installed"`
}

// OpResult is the outcome of a mutating operation.  Warning carries the
// secondary reconciliation channel: non-empty when the post-action status
// sync failed while the operation itself succeeded.
type OpResult struct {
	Warning string `json:"warning,omitempty"`
}

// TrialResult is the outcome of free-trial provisioning.
type TrialResult struct {
	Server             *gameserver.Server `json:"server"`
	AlreadyProvisioned bool               `json:"already_provisioned"`
}

//
// Service
//

// Service orchestrates multi-step operations across the store and panel.
type Service struct {
	store    Store
	panel    PanelAPI
	products Products
	audit    audit.Sink
	log      *zap.SugaredLogger
	sync     singleflight.Group
}

// New wires a Service.
func New(store Store, panelAPI PanelAPI, products Products, sink audit.Sink, log *zap.SugaredLogger) *Service {
	return &Service{
		store:    store,
		panel:    panelAPI,
		products: products,
		audit:    sink,
		log:      log,
	}
}

// authorize rejects actors who neither own the server nor hold an admin
// role.  Ownership is checked before state so a forbidden caller cannot
// probe lifecycle state through error differences.
func (s *Service) authorize(srv *gameserver.Server, actor auth.Identity) error {
	if actor.IsAdmin() || actor.UserID == srv.OwnerID {
		return nil
	}
	return ErrForbidden
}

// load fetches a non-deleted server and authorizes the actor against it.
func (s *Service) load(ctx context.Context, actor auth.Identity, serverID uint64) (*gameserver.Server, error) {
	srv, err := s.store.ByID(ctx, serverID)
	if err != nil {
		if errors.Is(err, gameserver.ErrNoRow) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.authorize(srv, actor); err != nil {
		return nil, err
	}
	return srv, nil
}

//
// SyncServerStatus
//

// SyncServerStatus fetches the remote operational state and refreshes the
// local cache.  Idempotent and safe under concurrency: simultaneous calls
// for one server share a single upstream fetch.  A remote 404 is reported
// as drift (ExistsOnPanel=false), never acted on destructively here.
func (s *Service) SyncServerStatus(ctx context.Context, actor auth.Identity, serverID uint64) (*SyncResult, error) {
	srv, err := s.load(ctx, actor, serverID)
	if err != nil {
		return nil, err
	}
	if !srv.Provisioned() {
		return nil, ErrNotProvisioned
	}

	cred := panel.Credential{Token: actor.PanelToken}
	v, err, _ := s.sync.Do(strconv.FormatUint(srv.ID, 10), func() (any, error) {
		state, err := s.panel.GetServer(ctx, cred, *srv.PanelIdent)
		if err != nil {
			if panel.IsNotFound(err) {
				metrics.DriftDetectedTotal.Inc()
				s.log.Warnw("drift: server missing on panel",
					"server_id", srv.ID, "panel_identifier", *srv.PanelIdent)
				return &SyncResult{ExistsOnPanel: false}, nil
			}
			return nil, err
		}
		if err := s.store.RefreshStatus(ctx, srv.ID, state.Suspended, state.Installed()); err != nil {
			return nil, err
		}
		return &SyncResult{
			ExistsOnPanel: true,
			Suspended:     state.Suspended,
			Installed:     state.Installed(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SyncResult), nil
}

//
// Suspend / Unsuspend
//

// Suspend halts a running server: remote suspend first, local flag only
// after the panel confirmed.  Precondition suspended == false.
func (s *Service) Suspend(ctx context.Context, actor auth.Identity, serverID uint64) (*OpResult, error) {
	return s.setSuspended(ctx, actor, serverID, true)
}

// Unsuspend resumes a suspended server.  Precondition suspended == true.
func (s *Service) Unsuspend(ctx context.Context, actor auth.Identity, serverID uint64) (*OpResult, error) {
	return s.setSuspended(ctx, actor, serverID, false)
}

func (s *Service) setSuspended(ctx context.Context, actor auth.Identity, serverID uint64, suspend bool) (*OpResult, error) {
	// Finish the remote/local pair even if the caller disconnects.
	ctx = context.WithoutCancel(ctx)

	var name string
	err := s.store.WithLock(ctx, serverID, func(tx gameserver.TxWriter, srv *gameserver.Server) error {
		if srv.Deleted() {
			return ErrNotFound
		}
		if err := s.authorize(srv, actor); err != nil {
			return err
		}
		if srv.Suspended == suspend {
			return ErrAlreadyInState
		}
		if srv.PanelID == nil {
			return ErrNotProvisioned
		}

		var err error
		if suspend {
			err = s.panel.SuspendServer(ctx, *srv.PanelID)
		} else {
			err = s.panel.UnsuspendServer(ctx, *srv.PanelID)
		}
		if err != nil {
			return err
		}
		name = srv.Name
		return tx.SetSuspended(ctx, srv.ID, suspend)
	})
	if err != nil {
		if errors.Is(err, gameserver.ErrNoRow) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	res := &OpResult{}
	if _, err := s.SyncServerStatus(ctx, actor, serverID); err != nil {
		// Best-effort reconciliation of the operational cache.  The
		// primary operation already committed, so this degrades to the
		// warning channel instead of failing the request.
		metrics.ReconcileWarningsTotal.Inc()
		s.log.Warnw("post-action status sync failed",
			"server_id", serverID, "err", err)
		res.Warning = "status sync failed: " + err.Error()
	}

	action := audit.ActionServerSuspend
	verb := "suspended"
	if !suspend {
		action = audit.ActionServerUnsuspend
		verb = "unsuspended"
	}
	s.append(ctx, audit.Entry{
		ActionID: action,
		Details:  fmt.Sprintf("%s server %q (#%d)", verb, name, serverID),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return res, nil
}

//
// SoftDelete
//

// SoftDelete removes the server from the panel, then marks the local row
// deleted.  A failed remote delete leaves the row untouched: a server must
// never be locally gone while it may still incur cost on the panel.  A
// remote 404 counts as already-gone drift and the local delete proceeds.
func (s *Service) SoftDelete(ctx context.Context, actor auth.Identity, serverID uint64) (*OpResult, error) {
	ctx = context.WithoutCancel(ctx)

	var name string
	err := s.store.WithLock(ctx, serverID, func(tx gameserver.TxWriter, srv *gameserver.Server) error {
		if srv.Deleted() {
			return ErrNotFound
		}
		if err := s.authorize(srv, actor); err != nil {
			return err
		}

		if srv.PanelID != nil {
			if err := s.panel.DeleteServer(ctx, *srv.PanelID); err != nil && !panel.IsNotFound(err) {
				return err
			}
		}
		name = srv.Name
		return tx.MarkDeleted(ctx, srv.ID)
	})
	if err != nil {
		if errors.Is(err, gameserver.ErrNoRow) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.append(ctx, audit.Entry{
		ActionID: audit.ActionServerDelete,
		Details:  fmt.Sprintf("deleted server %q (#%d)", name, serverID),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return &OpResult{}, nil
}

//
// ProvisionFreeTrial
//

// ProvisionFreeTrial creates the authoritative local record for a trial
// server.  At most one non-deleted trial per user and product; a second
// request reports AlreadyProvisioned instead of erroring.  The panel
// identity stays null—remote provisioning is an external worker's job.
func (s *Service) ProvisionFreeTrial(ctx context.Context, actor auth.Identity, gameSlug string) (*TrialResult, error) {
	ctx = context.WithoutCancel(ctx)

	plan, err := s.products.TrialByGame(ctx, gameSlug)
	if err != nil {
		if errors.Is(err, product.ErrNoRow) {
			return nil, &ValidationError{Msg: fmt.Sprintf("no trial plan for game %q", gameSlug)}
		}
		return nil, err
	}

	n, err := s.store.CountActiveTrials(ctx, actor.UserID, plan.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return &TrialResult{AlreadyProvisioned: true}, nil
	}

	now := time.Now().UTC()
	expires := now.AddDate(0, 0, plan.TrialDays)
	srv := &gameserver.Server{
		OwnerID:   actor.UserID,
		ProductID: &plan.ID,
		Name:      fmt.Sprintf("%s trial", plan.Name),
		ExpiresAt: &expires,
		CreatedAt: now,
	}
	id, err := s.store.Insert(ctx, srv)
	if err != nil {
		return nil, err
	}
	srv.ID = id

	s.append(ctx, audit.Entry{
		ActionID: audit.ActionTrialProvision,
		Details:  fmt.Sprintf("provisioned trial %q (#%d), expires %s", srv.Name, id, expires.Format(time.RFC3339)),
		UserID:   actor.UserID,
		ServerID: &id,
	})
	return &TrialResult{Server: srv}, nil
}

//
// Backup delegation
//

// RestoreBackup starts a backup restore.  truncate wipes the volume first.
func (s *Service) RestoreBackup(ctx context.Context, actor auth.Identity, serverID uint64, backupID string, truncate bool) error {
	srv, ident, err := s.loadProvisioned(ctx, actor, serverID)
	if err != nil {
		return err
	}
	cred := panel.Credential{Token: actor.PanelToken}
	if err := s.panel.RestoreBackup(ctx, cred, ident, backupID, truncate); err != nil {
		return err
	}
	s.append(ctx, audit.Entry{
		ActionID: audit.ActionBackupRestore,
		Details:  fmt.Sprintf("restored backup %s on server %q (truncate=%t)", backupID, srv.Name, truncate),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return nil
}

// DeleteBackup removes one backup on the panel.
func (s *Service) DeleteBackup(ctx context.Context, actor auth.Identity, serverID uint64, backupID string) error {
	srv, ident, err := s.loadProvisioned(ctx, actor, serverID)
	if err != nil {
		return err
	}
	cred := panel.Credential{Token: actor.PanelToken}
	if err := s.panel.DeleteBackup(ctx, cred, ident, backupID); err != nil {
		return err
	}
	s.append(ctx, audit.Entry{
		ActionID: audit.ActionBackupDelete,
		Details:  fmt.Sprintf("deleted backup %s on server %q", backupID, srv.Name),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return nil
}

// BackupDownloadURL returns a signed download link.  Read-only: no audit
// entry, safe to retry.
func (s *Service) BackupDownloadURL(ctx context.Context, actor auth.Identity, serverID uint64, backupID string) (string, error) {
	_, ident, err := s.loadProvisioned(ctx, actor, serverID)
	if err != nil {
		return "", err
	}
	cred := panel.Credential{Token: actor.PanelToken}
	return s.panel.BackupDownloadURL(ctx, cred, ident, backupID)
}

//
// Proxy pass-throughs (console / power / file surface)
//

// SendPower forwards a power signal.
func (s *Service) SendPower(ctx context.Context, actor auth.Identity, serverID uint64, signal string) error {
	switch signal {
	case panel.PowerStart, panel.PowerStop, panel.PowerRestart, panel.PowerKill:
	default:
		return &ValidationError{Msg: fmt.Sprintf("unknown power signal %q", signal)}
	}
	srv, ident, err := s.loadProvisioned(ctx, actor, serverID)
	if err != nil {
		return err
	}
	cred := panel.Credential{Token: actor.PanelToken}
	if err := s.panel.SendPowerSignal(ctx, cred, ident, signal); err != nil {
		return err
	}
	s.append(ctx, audit.Entry{
		ActionID: audit.ActionPowerSignal,
		Details:  fmt.Sprintf("sent %s to server %q", signal, srv.Name),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return nil
}

// SendCommand forwards one console command.
func (s *Service) SendCommand(ctx context.Context, actor auth.Identity, serverID uint64, command string) error {
	if command == "" {
		return &ValidationError{Msg: "command must not be empty"}
	}
	srv, ident, err := s.loadProvisioned(ctx, actor, serverID)
	if err != nil {
		return err
	}
	cred := panel.Credential{Token: actor.PanelToken}
	if err := s.panel.SendCommand(ctx, cred, ident, command); err != nil {
		return err
	}
	s.append(ctx, audit.Entry{
		ActionID: audit.ActionCommand,
		Details:  fmt.Sprintf("ran console command on server %q", srv.Name),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return nil
}

// WriteFile replaces one file on the server volume.
func (s *Service) WriteFile(ctx context.Context, actor auth.Identity, serverID uint64, path string, contents []byte) error {
	if path == "" {
		return &ValidationError{Msg: "file path must not be empty"}
	}
	srv, ident, err := s.loadProvisioned(ctx, actor, serverID)
	if err != nil {
		return err
	}
	cred := panel.Credential{Token: actor.PanelToken}
	if err := s.panel.WriteFile(ctx, cred, ident, path, contents); err != nil {
		return err
	}
	s.append(ctx, audit.Entry{
		ActionID: audit.ActionFileWrite,
		Details:  fmt.Sprintf("wrote %s on server %q", path, srv.Name),
		UserID:   actor.UserID,
		ServerID: &serverID,
	})
	return nil
}

//
// internals
//

// loadProvisioned is load plus the NotProvisioned guard shared by every
// delegation that needs the opaque panel identifier.
func (s *Service) loadProvisioned(ctx context.Context, actor auth.Identity, serverID uint64) (*gameserver.Server, string, error) {
	srv, err := s.load(ctx, actor, serverID)
	if err != nil {
		return nil, "", err
	}
	if !srv.Provisioned() {
		return nil, "", ErrNotProvisioned
	}
	return srv, *srv.PanelIdent, nil
}

// append writes one audit entry.  An audit failure never fails the parent
// operation; it is logged and counted.
func (s *Service) append(ctx context.Context, e audit.Entry) {
	if err := s.audit.Append(ctx, e); err != nil {
		metrics.AuditWriteErrorsTotal.Inc()
		s.log.Errorw("audit append failed", "action", e.ActionID, "err", err)
	}
}
