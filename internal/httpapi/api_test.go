// internal/httpapi/api_test.go
//
// Router-level tests: request parsing, identity middleware, and status
// codes with real services over in-memory collaborators.
//
// Run: go test ./internal/httpapi -v

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/gamehost/internal/audit"
	"github.com/yanizio/gamehost/internal/auth"
	"github.com/yanizio/gamehost/internal/checkout"
	"github.com/yanizio/gamehost/internal/gameserver"
	"github.com/yanizio/gamehost/internal/panel"
	"github.com/yanizio/gamehost/internal/product"
	"github.com/yanizio/gamehost/internal/reconcile"
	"github.com/yanizio/gamehost/internal/voucher"
)

/*──────────────────────────── fakes ───────────────────────────*/

type memStore struct {
	mu      sync.Mutex
	servers map[uint64]*gameserver.Server
}

func (m *memStore) ByID(ctx context.Context, id uint64) (*gameserver.Server, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[id]
	if !ok || s.Deleted() {
		return nil, gameserver.ErrNoRow
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) WithLock(ctx context.Context, id uint64, fn func(tx gameserver.TxWriter, srv *gameserver.Server) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[id]
	if !ok {
		return gameserver.ErrNoRow
	}
	cp := *s
	return fn(&memTx{m: m}, &cp)
}

func (m *memStore) RefreshStatus(ctx context.Context, id uint64, suspended, installed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.servers[id]; ok {
		s.Suspended = suspended
		s.Installed = installed
	}
	return nil
}

func (m *memStore) CountActiveTrials(ctx context.Context, ownerID, productID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.servers {
		if s.OwnerID == ownerID && s.ProductID != nil && *s.ProductID == productID && !s.Deleted() {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Insert(ctx context.Context, s *gameserver.Server) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uint64(len(m.servers) + 1000)
	cp := *s
	cp.ID = id
	m.servers[id] = &cp
	return id, nil
}

type memTx struct{ m *memStore }

func (t *memTx) SetSuspended(ctx context.Context, id uint64, suspended bool) error {
	t.m.servers[id].Suspended = suspended
	return nil
}

func (t *memTx) MarkDeleted(ctx context.Context, id uint64) error {
	now := time.Now().UTC()
	t.m.servers[id].DeletedAt = &now
	t.m.servers[id].Suspended = true
	return nil
}

// stubPanel answers every call successfully and tracks the suspended
// flag so post-action syncs see the state the calls produced.
type stubPanel struct {
	mu    sync.Mutex
	state panel.ServerState
}

func (p *stubPanel) GetServer(ctx context.Context, cred panel.Credential, ident string) (*panel.ServerState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := p.state
	return &cp, nil
}
func (p *stubPanel) SuspendServer(ctx context.Context, id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Suspended = true
	return nil
}
func (p *stubPanel) UnsuspendServer(ctx context.Context, id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Suspended = false
	return nil
}
func (p *stubPanel) DeleteServer(ctx context.Context, id uint64) error { return nil }
func (p *stubPanel) RestoreBackup(ctx context.Context, cred panel.Credential, ident, backupID string, truncate bool) error {
	return nil
}
func (p *stubPanel) DeleteBackup(ctx context.Context, cred panel.Credential, ident, backupID string) error {
	return nil
}
func (p *stubPanel) BackupDownloadURL(ctx context.Context, cred panel.Credential, ident, backupID string) (string, error) {
	return "https://dl.example.com/" + backupID, nil
}
func (p *stubPanel) SendPowerSignal(ctx context.Context, cred panel.Credential, ident, signal string) error {
	return nil
}
func (p *stubPanel) SendCommand(ctx context.Context, cred panel.Credential, ident, command string) error {
	return nil
}
func (p *stubPanel) WriteFile(ctx context.Context, cred panel.Credential, ident, path string, contents []byte) error {
	return nil
}

type stubCatalog struct{ trial *product.Product }

func (c *stubCatalog) TrialByGame(ctx context.Context, gameSlug string) (*product.Product, error) {
	if c.trial == nil || c.trial.GameSlug != gameSlug {
		return nil, product.ErrNoRow
	}
	cp := *c.trial
	return &cp, nil
}

func (c *stubCatalog) ByID(ctx context.Context, id uint64) (*product.Product, error) {
	if c.trial == nil || c.trial.ID != id {
		return nil, product.ErrNoRow
	}
	cp := *c.trial
	return &cp, nil
}

type stubVouchers struct{}

func (stubVouchers) ByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	return nil, voucher.ErrNoRow
}

type stubProvider struct{}

func (stubProvider) CreateSession(ctx context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	return &checkout.Session{ID: "sess-1", RedirectURL: "https://pay.example.com/sess-1"}, nil
}

type nullSink struct{}

func (nullSink) Append(ctx context.Context, e audit.Entry) error { return nil }

/*─────────────────────────── fixture ──────────────────────────*/

func newTestAPI(t *testing.T) (http.Handler, *memStore) {
	t.Helper()

	pid := uint64(901)
	ident := "abc123"
	store := &memStore{servers: map[uint64]*gameserver.Server{
		1: {ID: 1, OwnerID: 7, Name: "mc-1", PanelID: &pid, PanelIdent: &ident,
			Installed: true, CreatedAt: time.Now().UTC()},
	}}

	catalog := &stubCatalog{trial: &product.Product{
		ID: 55, GameSlug: "minecraft", Name: "Minecraft Free",
		PriceMonthly: decimal.RequireFromString("19.99"),
		IsTrial:      true, TrialDays: 7,
	}}

	log := zap.NewNop().Sugar()
	rec := reconcile.New(store, &stubPanel{state: panel.ServerState{Identifier: ident, Name: "mc-1"}},
		catalog, nullSink{}, log)
	co := checkout.New(catalog, stubVouchers{}, stubProvider{}, log)

	resolver := func(r *http.Request) (auth.Identity, error) {
		if r.Header.Get("X-User-Id") == "" {
			return auth.Identity{}, errors.New("no session")
		}
		id := auth.Identity{UserID: 7, Role: auth.RoleUser}
		if r.Header.Get("X-User-Role") == auth.RoleAdmin {
			id.Role = auth.RoleAdmin
		}
		return id, nil
	}
	return New(rec, co, resolver, log).Router(), store
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set("X-User-Id", "7")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

/*──────────────────────────── tests ───────────────────────────*/

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	h, _ := newTestAPI(t)

	r := httptest.NewRequest(http.MethodPost, "/servers/1/suspend", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSuspendEndpoint(t *testing.T) {
	h, store := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/servers/1/suspend", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, store.servers[1].Suspended)

	// Second suspend trips the precondition.
	w = doJSON(t, h, http.MethodPost, "/servers/1/suspend", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMalformedServerID(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/servers/banana/suspend", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/servers/0/suspend", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMissingServerIs404(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/servers/99/sync", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	h, store := newTestAPI(t)

	w := doJSON(t, h, http.MethodDelete, "/servers/1/", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, store.servers[1].Deleted())

	// Deleted servers answer 404 from then on.
	w = doJSON(t, h, http.MethodPost, "/servers/1/sync", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTrialEndpoint(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/trial", `{"game":"minecraft"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var first struct {
		Server             *gameserver.Server `json:"server"`
		AlreadyProvisioned bool               `json:"already_provisioned"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&first))
	require.NotNil(t, first.Server)
	assert.False(t, first.AlreadyProvisioned)

	// Second provisioning attempt is idempotent and reports 200.
	w = doJSON(t, h, http.MethodPost, "/trial", `{"game":"minecraft"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTrialUnknownGame(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/trial", `{"game":"rust"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrialRejectsUnknownFields(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/trial", `{"game":"minecraft","admin":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPowerEndpointValidatesSignal(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/servers/1/power", `{"signal":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/servers/1/power", `{"signal":"restart"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBackupDownloadEndpoint(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodGet, "/servers/1/backups/bk-1/download", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "https://dl.example.com/bk-1", body["url"])
}

func TestQuoteEndpoint(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/checkout/quote", `{"product_id":55}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var q checkout.Quote
	require.NoError(t, json.NewDecoder(w.Body).Decode(&q))
	assert.True(t, q.Amount.Equal(decimal.RequireFromString("19.99")))
}

func TestCheckoutEndpoint(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/checkout", `{"product_id":55}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var body struct {
		Session checkout.Session `json:"session"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "https://pay.example.com/sess-1", body.Session.RedirectURL)
}

func TestQuoteUnknownVoucherCode(t *testing.T) {
	h, _ := newTestAPI(t)

	w := doJSON(t, h, http.MethodPost, "/checkout/quote", `{"product_id":55,"voucher":"NOPE"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
