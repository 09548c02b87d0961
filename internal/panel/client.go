// internal/panel/client.go
//
// Typed wrapper around the remote provisioning panel's REST surface.
//
/*
Context
--------
The panel is the system that actually runs game-server processes.  It
exposes two API families:

  • application API – administrative, authenticated with the service-level
    application key (create/delete/suspend servers, create users).
  • client API – per-server operational calls (status, backups, power,
    command, file write), authenticated either with the acting user's own
    key or with the configured service client key.  The credential is an
    explicit parameter so authorization intent stays auditable.

The wrapper is pure request/response: no retries, no caching, no local
state.  Every call is bounded by a 10-second timeout; a timeout or
transport error classifies as ErrUnavailable, a non-2xx response as
*APIError.  Responses are parsed into explicit structs and validated;
missing required fields surface as *APIError rather than propagating
zero values.
*/
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yanizio/gamehost/internal/metrics"
)

const (
	callTimeout = 10 * time.Second
	maxErrBody  = 512 // bytes of upstream body kept on APIError
)

// Credential selects the token for a client-API call.  The zero value
// falls back to the service client key configured on the Client.
type Credential struct {
	Token string
}

// Client issues authenticated calls to one panel installation.
type Client struct {
	baseURL   string
	appKey    string // application API credential
	clientKey string // service-level client API fallback
	http      *http.Client
}

// New constructs a Client.  baseURL must carry scheme and host, with no
// trailing slash.
func New(baseURL, appKey, clientKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		appKey:    appKey,
		clientKey: clientKey,
		http:      &http.Client{Timeout: callTimeout},
	}
}

//
// Application API (service credential)
//

// CreateServerRequest is the provisioning payload for a new server.
type CreateServerRequest struct {
	Name    string `json:"name"`
	UserID  uint64 `json:"user"`
	EggID   uint64 `json:"egg"`
	MemSize uint64 `json:"memory_mb"`
	Disk    uint64 `json:"disk_mb"`
}

// CreatedServer is the identity pair assigned by the panel.
type CreatedServer struct {
	ID         uint64
	Identifier string
}

// CreateServer provisions a new server and returns its identity pair.
func (c *Client) CreateServer(ctx context.Context, req CreateServerRequest) (*CreatedServer, error) {
	var out struct {
		Attributes struct {
			ID         uint64 `json:"id"`
			Identifier string `json:"identifier"`
		} `json:"attributes"`
	}
	err := c.do(ctx, "server.create", http.MethodPost,
		"/api/application/servers", c.appKey, req, &out)
	if err != nil {
		return nil, err
	}
	if out.Attributes.ID == 0 || out.Attributes.Identifier == "" {
		return nil, &APIError{Op: "server.create", Status: 200,
			Body: "response missing server identity"}
	}
	return &CreatedServer{
		ID:         out.Attributes.ID,
		Identifier: out.Attributes.Identifier,
	}, nil
}

// SuspendServer halts a server by panel numeric id.
func (c *Client) SuspendServer(ctx context.Context, id uint64) error {
	p := fmt.Sprintf("/api/application/servers/%d/suspend", id)
	return c.do(ctx, "server.suspend", http.MethodPost, p, c.appKey, nil, nil)
}

// UnsuspendServer resumes a suspended server.
func (c *Client) UnsuspendServer(ctx context.Context, id uint64) error {
	p := fmt.Sprintf("/api/application/servers/%d/unsuspend", id)
	return c.do(ctx, "server.unsuspend", http.MethodPost, p, c.appKey, nil, nil)
}

// DeleteServer removes the server from the panel.
func (c *Client) DeleteServer(ctx context.Context, id uint64) error {
	p := fmt.Sprintf("/api/application/servers/%d", id)
	return c.do(ctx, "server.delete", http.MethodDelete, p, c.appKey, nil, nil)
}

// CreateUserRequest registers a panel account for a billing user.
type CreateUserRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CreateUser creates a remote panel user and returns its numeric id.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (uint64, error) {
	var out struct {
		Attributes struct {
			ID uint64 `json:"id"`
		} `json:"attributes"`
	}
	err := c.do(ctx, "user.create", http.MethodPost,
		"/api/application/users", c.appKey, req, &out)
	if err != nil {
		return 0, err
	}
	if out.Attributes.ID == 0 {
		return 0, &APIError{Op: "user.create", Status: 200,
			Body: "response missing user id"}
	}
	return out.Attributes.ID, nil
}

//
// Client API (explicit credential)
//

// ServerState is the parsed operational state of one server.
type ServerState struct {
	Identifier string
	Name       string
	Suspended  bool
	Installing bool
}

// Installed reports whether remote provisioning has completed.
func (s *ServerState) Installed() bool { return !s.Installing }

// GetServer fetches current operational state by opaque identifier.
func (c *Client) GetServer(ctx context.Context, cred Credential, ident string) (*ServerState, error) {
	var out struct {
		Attributes struct {
			Identifier   string `json:"identifier"`
			Name         string `json:"name"`
			IsSuspended  bool   `json:"is_suspended"`
			IsInstalling bool   `json:"is_installing"`
		} `json:"attributes"`
	}
	p := "/api/client/servers/" + url.PathEscape(ident)
	err := c.do(ctx, "server.get", http.MethodGet, p, c.token(cred), nil, &out)
	if err != nil {
		return nil, err
	}
	if out.Attributes.Identifier == "" {
		return nil, &APIError{Op: "server.get", Status: 200,
			Body: "response missing server attributes"}
	}
	return &ServerState{
		Identifier: out.Attributes.Identifier,
		Name:       out.Attributes.Name,
		Suspended:  out.Attributes.IsSuspended,
		Installing: out.Attributes.IsInstalling,
	}, nil
}

// RestoreBackup starts a restore.  truncate wipes the server volume first.
func (c *Client) RestoreBackup(ctx context.Context, cred Credential, ident, backupID string, truncate bool) error {
	p := fmt.Sprintf("/api/client/servers/%s/backups/%s/restore",
		url.PathEscape(ident), url.PathEscape(backupID))
	body := map[string]bool{"truncate": truncate}
	return c.do(ctx, "backup.restore", http.MethodPost, p, c.token(cred), body, nil)
}

// DeleteBackup removes one backup.
func (c *Client) DeleteBackup(ctx context.Context, cred Credential, ident, backupID string) error {
	p := fmt.Sprintf("/api/client/servers/%s/backups/%s",
		url.PathEscape(ident), url.PathEscape(backupID))
	return c.do(ctx, "backup.delete", http.MethodDelete, p, c.token(cred), nil, nil)
}

// BackupDownloadURL returns a signed, short-lived download link.
func (c *Client) BackupDownloadURL(ctx context.Context, cred Credential, ident, backupID string) (string, error) {
	var out struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	}
	p := fmt.Sprintf("/api/client/servers/%s/backups/%s/download",
		url.PathEscape(ident), url.PathEscape(backupID))
	err := c.do(ctx, "backup.download", http.MethodGet, p, c.token(cred), nil, &out)
	if err != nil {
		return "", err
	}
	if out.Attributes.URL == "" {
		return "", &APIError{Op: "backup.download", Status: 200,
			Body: "response missing download url"}
	}
	return out.Attributes.URL, nil
}

// Power signals accepted by SendPowerSignal.
const (
	PowerStart   = "start"
	PowerStop    = "stop"
	PowerRestart = "restart"
	PowerKill    = "kill"
)

// SendPowerSignal issues start/stop/restart/kill.
func (c *Client) SendPowerSignal(ctx context.Context, cred Credential, ident, signal string) error {
	p := fmt.Sprintf("/api/client/servers/%s/power", url.PathEscape(ident))
	body := map[string]string{"signal": signal}
	return c.do(ctx, "server.power", http.MethodPost, p, c.token(cred), body, nil)
}

// SendCommand runs one console command on the server.
func (c *Client) SendCommand(ctx context.Context, cred Credential, ident, command string) error {
	p := fmt.Sprintf("/api/client/servers/%s/command", url.PathEscape(ident))
	body := map[string]string{"command": command}
	return c.do(ctx, "server.command", http.MethodPost, p, c.token(cred), body, nil)
}

// WriteFile replaces the contents of one file on the server volume.
func (c *Client) WriteFile(ctx context.Context, cred Credential, ident, path string, contents []byte) error {
	p := fmt.Sprintf("/api/client/servers/%s/files/write?file=%s",
		url.PathEscape(ident), url.QueryEscape(path))
	return c.doRaw(ctx, "file.write", http.MethodPost, p, c.token(cred), contents)
}

//
// Transport helpers
//

// token selects the per-call credential, falling back to the service
// client key.
func (c *Client) token(cred Credential) string {
	if cred.Token != "" {
		return cred.Token
	}
	return c.clientKey
}

// do issues one JSON request and decodes the response into out (when
// non-nil).  Outcome labels feed the panel_calls_total metric.
func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("panel %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("panel %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PanelCallsTotal.WithLabelValues(op, "unavailable").Inc()
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.PanelCallsTotal.WithLabelValues(op, "error").Inc()
		return &APIError{Op: op, Status: resp.StatusCode, Body: readErrBody(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.PanelCallsTotal.WithLabelValues(op, "error").Inc()
			return &APIError{Op: op, Status: resp.StatusCode,
				Body: "undecodable response: " + err.Error()}
		}
	}
	metrics.PanelCallsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// doRaw is do without JSON framing, used by the file-write endpoint.
func (c *Client) doRaw(ctx context.Context, op, method, path, token string, contents []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path,
		bytes.NewReader(contents))
	if err != nil {
		return fmt.Errorf("panel %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.PanelCallsTotal.WithLabelValues(op, "unavailable").Inc()
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.PanelCallsTotal.WithLabelValues(op, "error").Inc()
		return &APIError{Op: op, Status: resp.StatusCode, Body: readErrBody(resp.Body)}
	}
	metrics.PanelCallsTotal.WithLabelValues(op, "ok").Inc()
	return nil
}

// readErrBody captures a bounded prefix of an upstream error body.
func readErrBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrBody))
	return strings.TrimSpace(string(b))
}
