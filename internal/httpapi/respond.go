// internal/httpapi/respond.go
//
// JSON response helpers and the error-taxonomy → status-code mapping.
//
// Every handler funnels failures through writeError so the mapping lives
// in exactly one place: typed domain outcomes become 4xx with a stable
// machine-readable code, upstream panel failures become 502/504 with the
// remote status attached, and anything unclassified is a logged 500 that
// leaks nothing.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/gamehost/internal/checkout"
	"github.com/yanizio/gamehost/internal/config"
	"github.com/yanizio/gamehost/internal/panel"
	"github.com/yanizio/gamehost/internal/product"
	"github.com/yanizio/gamehost/internal/reconcile"
	"github.com/yanizio/gamehost/internal/voucher"
)

// errorBody is the uniform failure envelope.
type errorBody struct {
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps err onto the HTTP taxonomy.
func writeError(w http.ResponseWriter, err error) {
	var (
		reconcileVal *reconcile.ValidationError
		voucherVal   *voucher.ValidationError
		apiErr       *panel.APIError
	)

	switch {
	case errors.Is(err, reconcile.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "server not found", Code: "not_found"})

	case errors.Is(err, product.ErrNoRow):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "product not found", Code: "not_found"})

	case errors.Is(err, reconcile.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "forbidden"})

	case errors.Is(err, reconcile.ErrAlreadyInState):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "server already in requested state", Code: "already_in_state"})

	case errors.Is(err, reconcile.ErrNotProvisioned):
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "server not provisioned on panel yet", Code: "not_provisioned"})

	case errors.As(err, &reconcileVal):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: reconcileVal.Msg, Code: "validation"})

	case errors.As(err, &voucherVal):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: voucherVal.Error(), Code: "voucher_" + voucherVal.Reason})

	case errors.Is(err, checkout.ErrUnknownVoucher):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: "unknown voucher code", Code: "voucher_unknown"})

	case errors.Is(err, panel.ErrUnavailable):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{
			Error: "panel unavailable", Code: "upstream_unavailable"})

	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, errorBody{
			Error: "panel rejected the request", Code: "upstream_error",
			UpstreamStatus: apiErr.Status})

	case errors.Is(err, config.ErrMissingSetting):
		zap.S().Errorw("configuration error", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "service misconfigured", Code: "configuration"})

	default:
		zap.S().Errorw("unhandled API error", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error: "internal error", Code: "internal"})
	}
}
