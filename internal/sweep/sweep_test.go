// internal/sweep/sweep_test.go
//
// Unit-tests for the expiry sweep pass.
//
// Run: go test ./internal/sweep -v

package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/yanizio/gamehost/internal/auth"
	"github.com/yanizio/gamehost/internal/gameserver"
	"github.com/yanizio/gamehost/internal/reconcile"
)

type fakeLister struct {
	rows []gameserver.Server
	err  error
}

func (f *fakeLister) ExpiredActive(ctx context.Context, limit int) ([]gameserver.Server, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

type fakeSuspender struct {
	mu     sync.Mutex
	errs   map[uint64]error
	actors []auth.Identity
	ids    []uint64
}

func (f *fakeSuspender) Suspend(ctx context.Context, actor auth.Identity, serverID uint64) (*reconcile.OpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actors = append(f.actors, actor)
	f.ids = append(f.ids, serverID)
	if err, ok := f.errs[serverID]; ok {
		return nil, err
	}
	return &reconcile.OpResult{}, nil
}

func servers(ids ...uint64) []gameserver.Server {
	out := make([]gameserver.Server, 0, len(ids))
	for _, id := range ids {
		out = append(out, gameserver.Server{ID: id})
	}
	return out
}

func TestRunSuspendsExpired(t *testing.T) {
	susp := &fakeSuspender{}
	s := New(&fakeLister{rows: servers(1, 2, 3)}, susp, zap.NewNop().Sugar())

	s.Run()

	if len(susp.ids) != 3 {
		t.Fatalf("suspended %d servers, want 3", len(susp.ids))
	}
	for _, a := range susp.actors {
		if a.Role != auth.RoleSystem {
			t.Errorf("sweep must act as the system identity, got %q", a.Role)
		}
	}
}

func TestRunToleratesExpectedOutcomes(t *testing.T) {
	susp := &fakeSuspender{errs: map[uint64]error{
		1: reconcile.ErrAlreadyInState,
		2: reconcile.ErrNotProvisioned,
		3: reconcile.ErrNotFound,
		4: errors.New("panel exploded"),
	}}
	s := New(&fakeLister{rows: servers(1, 2, 3, 4, 5)}, susp, zap.NewNop().Sugar())

	// Must not panic or stop early; every expired row gets its attempt.
	s.Run()

	if len(susp.ids) != 5 {
		t.Fatalf("attempted %d servers, want 5", len(susp.ids))
	}
}

func TestRunQueryFailure(t *testing.T) {
	susp := &fakeSuspender{}
	s := New(&fakeLister{err: errors.New("db down")}, susp, zap.NewNop().Sugar())

	s.Run()

	if len(susp.ids) != 0 {
		t.Fatalf("no suspends expected after a failed query, got %d", len(susp.ids))
	}
}

func TestStartEmptyScheduleDisables(t *testing.T) {
	s := New(&fakeLister{}, &fakeSuspender{}, zap.NewNop().Sugar())
	if err := s.Start(""); err != nil {
		t.Fatalf("empty schedule must disable, not fail: %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(&fakeLister{}, &fakeSuspender{}, zap.NewNop().Sugar())
	if err := s.Start("not a cron spec"); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
