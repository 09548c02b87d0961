// internal/httpapi/api.go
//
// JSON API surface: one endpoint per reconciliation operation, plus the
// checkout flow.
//
/*
Context
--------
Handlers here are deliberately thin.  They parse path and body, resolve
the acting identity, call one service method, and map the result or the
typed failure onto JSON.  Everything interesting—preconditions, ordering,
locking, audit—lives behind the service boundary.

Session resolution is external: the constructor takes an
IdentityResolver, and whatever cookie/token scheme the web layer uses
stays out of this repo.
*/
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/gamehost/internal/auth"
	"github.com/yanizio/gamehost/internal/checkout"
	"github.com/yanizio/gamehost/internal/reconcile"
	"github.com/yanizio/gamehost/internal/requestinfo"
)

// IdentityResolver turns an incoming request into the acting identity.
// Returning an error yields 401 before any handler runs.
type IdentityResolver func(r *http.Request) (auth.Identity, error)

// API holds the wired services.
type API struct {
	reconcile *reconcile.Service
	checkout  *checkout.Service
	resolve   IdentityResolver
	log       *zap.SugaredLogger
}

// New wires the API.
func New(rec *reconcile.Service, co *checkout.Service, resolve IdentityResolver, log *zap.SugaredLogger) *API {
	return &API{reconcile: rec, checkout: co, resolve: resolve, log: log}
}

// Router builds the chi router for the /api subtree.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestinfo.Enrich)
	r.Use(a.withIdentity)

	r.Post("/trial", a.handleProvisionTrial)
	r.Post("/checkout/quote", a.handleQuote)
	r.Post("/checkout", a.handleCheckout)

	r.Route("/servers/{serverID}", func(r chi.Router) {
		r.Post("/sync", a.handleSync)
		r.Post("/suspend", a.handleSuspend)
		r.Post("/unsuspend", a.handleUnsuspend)
		r.Delete("/", a.handleDelete)
		r.Post("/power", a.handlePower)
		r.Post("/command", a.handleCommand)
		r.Post("/files/write", a.handleFileWrite)

		r.Route("/backups/{backupID}", func(r chi.Router) {
			r.Post("/restore", a.handleBackupRestore)
			r.Delete("/", a.handleBackupDelete)
			r.Get("/download", a.handleBackupDownload)
		})
	})
	return r
}

// withIdentity resolves the session and stores the identity in the
// request context.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.resolve(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Error: "authentication required", Code: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

//
// Helpers
//

// actor pulls the identity attached by withIdentity.
func actor(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// serverID parses the {serverID} path segment.
func serverID(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "serverID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, &reconcile.ValidationError{Msg: "malformed server id"}
	}
	return id, nil
}

// decodeBody strictly decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &reconcile.ValidationError{Msg: "malformed request body"}
	}
	return nil
}

//
// Server lifecycle handlers
//

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.reconcile.SyncServerStatus(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleSuspend(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.reconcile.Suspend(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleUnsuspend(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.reconcile.Unsuspend(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.reconcile.SoftDelete(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleProvisionTrial(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Game string `json:"game"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	res, err := a.reconcile.ProvisionFreeTrial(r.Context(), actor(r), body.Game)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyProvisioned {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

//
// Proxy-shaped handlers (power / command / file write)
//

func (a *API) handlePower(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Signal string `json:"signal"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := a.reconcile.SendPower(r.Context(), actor(r), id, body.Signal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleCommand(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Command string `json:"command"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := a.reconcile.SendCommand(r.Context(), actor(r), id, body.Command); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleFileWrite(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Path     string `json:"path"`
		Contents string `json:"contents"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := a.reconcile.WriteFile(r.Context(), actor(r), id, body.Path, []byte(body.Contents)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

//
// Backup handlers
//

func (a *API) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Truncate bool `json:"truncate"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	backupID := chi.URLParam(r, "backupID")
	if err := a.reconcile.RestoreBackup(r.Context(), actor(r), id, backupID, body.Truncate); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleBackupDelete(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	backupID := chi.URLParam(r, "backupID")
	if err := a.reconcile.DeleteBackup(r.Context(), actor(r), id, backupID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) handleBackupDownload(w http.ResponseWriter, r *http.Request) {
	id, err := serverID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	backupID := chi.URLParam(r, "backupID")
	url, err := a.reconcile.BackupDownloadURL(r.Context(), actor(r), id, backupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

//
// Checkout handlers
//

func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID uint64 `json:"product_id"`
		Voucher   string `json:"voucher"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	q, err := a.checkout.Quote(r.Context(), body.ProductID, body.Voucher)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID uint64 `json:"product_id"`
		Voucher   string `json:"voucher"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	sess, q, err := a.checkout.Begin(r.Context(), actor(r).UserID, body.ProductID, body.Voucher)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"session": sess,
		"quote":   q,
	})
}
