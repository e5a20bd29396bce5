package status

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gomodule/redigo/redis"

	"github.com/duskvault/duskvault/internal/index"
)

func newTestOrchestrator(t *testing.T, now time.Time) (*Orchestrator, *index.Index) {
	t.Helper()
	mr := miniredis.RunT(t)
	pool := &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", mr.Addr())
		},
		MaxIdle: 4,
	}
	t.Cleanup(pool.Close)
	idx := index.New(pool)
	return &Orchestrator{Index: idx, Now: func() time.Time { return now }}, idx
}

func TestRunAbsentIsExpiredOrBurned(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, _ := newTestOrchestrator(t, now)

	result, err := o.Run("nope-nope-nope")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateExpiredOrBurned {
		t.Errorf("State = %v, want %v", result.State, StateExpiredOrBurned)
	}
	if result.IsAccessible {
		t.Errorf("expected not accessible")
	}
	if !result.Missing {
		t.Errorf("expected Missing=true for an absent identifier")
	}
}

func TestRunActive(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, idx := newTestOrchestrator(t, now)

	rec := index.Record{
		Filename: "f.bin", CreatedAt: now, ExpiryAt: now.Add(10 * time.Minute),
		EncryptionKey: []byte("k"), Uses: 2,
	}
	if err := idx.Save("active-one-two", rec, 10*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := o.Run("active-one-two")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateActive || !result.IsAccessible {
		t.Errorf("got state=%v accessible=%v, want active/true", result.State, result.IsAccessible)
	}
	if result.RemainingUses != 2 {
		t.Errorf("RemainingUses = %d, want 2", result.RemainingUses)
	}
	if result.Missing {
		t.Errorf("expected Missing=false for a record that exists")
	}
}

func TestRunExpired(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, idx := newTestOrchestrator(t, now)

	rec := index.Record{
		Filename: "f.bin", CreatedAt: now.Add(-time.Hour), ExpiryAt: now.Add(-time.Minute),
		EncryptionKey: []byte("k"), Uses: 2,
	}
	if err := idx.Save("expired-one-two", rec, time.Hour); err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := o.Run("expired-one-two")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateExpired || result.IsAccessible {
		t.Errorf("got state=%v accessible=%v, want expired/false", result.State, result.IsAccessible)
	}
}

func TestRunBurned(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, idx := newTestOrchestrator(t, now)

	rec := index.Record{
		Filename: "f.bin", CreatedAt: now, ExpiryAt: now.Add(10 * time.Minute),
		EncryptionKey: []byte("k"), Uses: 0,
	}
	if err := idx.Save("burned-one-two", rec, 10*time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	result, err := o.Run("burned-one-two")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.State != StateBurned || result.IsAccessible {
		t.Errorf("got state=%v accessible=%v, want burned/false", result.State, result.IsAccessible)
	}
}
