// internal/panel/client_test.go
//
// Unit-tests for the panel client against httptest servers.
//
// Run: go test ./internal/panel -v

package panel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "app-key", "service-client-key")
}

func TestGetServer(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"attributes": map[string]any{
				"identifier":    "abc123",
				"name":          "mc-1",
				"is_suspended":  true,
				"is_installing": false,
			},
		})
	})

	state, err := c.GetServer(context.Background(), Credential{Token: "user-key"}, "abc123")
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if gotPath != "/api/client/servers/abc123" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer user-key" {
		t.Errorf("per-user credential not forwarded: %s", gotAuth)
	}
	if !state.Suspended || !state.Installed() || state.Name != "mc-1" {
		t.Errorf("unexpected state: %#v", state)
	}
}

func TestGetServerFallsBackToServiceKey(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"attributes": map[string]any{"identifier": "abc123"},
		})
	})

	if _, err := c.GetServer(context.Background(), Credential{}, "abc123"); err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if gotAuth != "Bearer service-client-key" {
		t.Errorf("expected service fallback, got %s", gotAuth)
	}
}

func TestGetServerRejectsEmptyAttributes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"attributes":{}}`))
	})

	_, err := c.GetServer(context.Background(), Credential{}, "abc123")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
}

func TestNotFoundClassification(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"code":"NotFoundHttpException"}]}`, http.StatusNotFound)
	})

	_, err := c.GetServer(context.Background(), Credential{}, "gone")
	if !IsNotFound(err) {
		t.Fatalf("want IsNotFound, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("unexpected error shape: %v", err)
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := New(srv.URL, "app-key", "client-key")

	err := c.SuspendServer(context.Background(), 901)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
}

func TestSuspendServerUsesApplicationKey(t *testing.T) {
	var gotAuth, gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.SuspendServer(context.Background(), 901); err != nil {
		t.Fatalf("SuspendServer: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/application/servers/901/suspend" {
		t.Errorf("%s %s", gotMethod, gotPath)
	}
	if gotAuth != "Bearer app-key" {
		t.Errorf("administrative calls must use the application key: %s", gotAuth)
	}
}

func TestDeleteServer(t *testing.T) {
	var gotPath, gotMethod string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.DeleteServer(context.Background(), 901); err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/application/servers/901" {
		t.Errorf("%s %s", gotMethod, gotPath)
	}
}

func TestCreateServer(t *testing.T) {
	var gotBody CreateServerRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"attributes": map[string]any{"id": 901, "identifier": "abc123"},
		})
	})

	created, err := c.CreateServer(context.Background(), CreateServerRequest{
		Name: "mc-1", UserID: 7, EggID: 3, MemSize: 2048, Disk: 10240,
	})
	if err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	if created.ID != 901 || created.Identifier != "abc123" {
		t.Errorf("unexpected identity: %#v", created)
	}
	if gotBody.Name != "mc-1" || gotBody.MemSize != 2048 {
		t.Errorf("unexpected payload: %#v", gotBody)
	}
}

func TestRestoreBackupPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.RestoreBackup(context.Background(), Credential{}, "abc123", "bk-1", true)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if gotPath != "/api/client/servers/abc123/backups/bk-1/restore" {
		t.Errorf("path = %s", gotPath)
	}
	if !gotBody["truncate"] {
		t.Error("truncate flag not forwarded")
	}
}

func TestBackupDownloadURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"attributes": map[string]any{"url": "https://dl.example.com/signed"},
		})
	})

	url, err := c.BackupDownloadURL(context.Background(), Credential{}, "abc123", "bk-1")
	if err != nil {
		t.Fatalf("BackupDownloadURL: %v", err)
	}
	if url != "https://dl.example.com/signed" {
		t.Errorf("url = %s", url)
	}
}

func TestWriteFile(t *testing.T) {
	var gotQuery, gotBody, gotCT string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		gotBody = string(b)
		gotCT = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.WriteFile(context.Background(), Credential{}, "abc123",
		"server.properties", []byte("motd=hello"))
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if gotQuery != "file=server.properties" {
		t.Errorf("query = %s", gotQuery)
	}
	if gotBody != "motd=hello" {
		t.Errorf("body = %q", gotBody)
	}
	if gotCT == "application/json" {
		t.Error("file writes are raw, not JSON framed")
	}
}

func TestErrorBodyIsBounded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 4096)))
	})

	err := c.SuspendServer(context.Background(), 901)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if len(apiErr.Body) > maxErrBody {
		t.Errorf("body length %d exceeds cap %d", len(apiErr.Body), maxErrBody)
	}
}
