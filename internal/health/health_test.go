package health

import (
	"errors"
	"testing"
	"time"

	"github.com/duskvault/duskvault/internal/uptime"
	"github.com/duskvault/duskvault/server/health"
)

func TestReportAllHealthy(t *testing.T) {
	h := new(health.Handler)
	h.Add("index", health.CheckerFunc(func() error { return nil }))
	h.Add("storage", health.CheckerFunc(func() error { return nil }))

	tr := uptime.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	tr.Start(now.Add(-5 * time.Minute))

	r := &Reporter{Handler: h, Uptime: tr, Version: "test", Now: func() time.Time { return now }}
	resp := r.Report()

	if resp.Status != StatusHealthy {
		t.Errorf("Status = %v, want %v", resp.Status, StatusHealthy)
	}
	if resp.UptimeSeconds != 300 {
		t.Errorf("UptimeSeconds = %d, want 300", resp.UptimeSeconds)
	}
	if len(resp.Services) != 2 {
		t.Errorf("len(Services) = %d, want 2", len(resp.Services))
	}
}

func TestReportDegradedOnAnyFailure(t *testing.T) {
	h := new(health.Handler)
	h.Add("index", health.CheckerFunc(func() error { return errors.New("unreachable") }))
	h.Add("storage", health.CheckerFunc(func() error { return nil }))

	tr := uptime.New()
	tr.Start(time.Now())

	r := &Reporter{Handler: h, Uptime: tr, Version: "test", Now: time.Now}
	resp := r.Report()

	if resp.Status != StatusDegraded {
		t.Errorf("Status = %v, want %v", resp.Status, StatusDegraded)
	}
	if resp.Services["index"] == "ok" {
		t.Errorf("expected index service to report down")
	}
}

func TestWordlistChecker(t *testing.T) {
	good := WordlistChecker{Size: func() int { return 7776 }, WantSize: 7776}
	if err := good.CheckHealth(); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	bad := WordlistChecker{Size: func() int { return 100 }, WantSize: 7776}
	if err := bad.CheckHealth(); err == nil {
		t.Errorf("expected error for wrong cardinality")
	}
}

func TestHeartbeatChecker(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	fresh := HeartbeatChecker{
		Get:       func() (time.Time, bool, error) { return now.Add(-30 * time.Second), true, nil },
		Threshold: time.Minute,
		Now:       func() time.Time { return now },
	}
	if err := fresh.CheckHealth(); err != nil {
		t.Errorf("expected fresh heartbeat healthy, got %v", err)
	}

	stale := HeartbeatChecker{
		Get:       func() (time.Time, bool, error) { return now.Add(-10 * time.Minute), true, nil },
		Threshold: time.Minute,
		Now:       func() time.Time { return now },
	}
	if err := stale.CheckHealth(); err == nil {
		t.Errorf("expected stale heartbeat unhealthy")
	}

	missing := HeartbeatChecker{
		Get:       func() (time.Time, bool, error) { return time.Time{}, false, nil },
		Threshold: time.Minute,
		Now:       func() time.Time { return now },
	}
	if err := missing.CheckHealth(); err == nil {
		t.Errorf("expected missing heartbeat unhealthy")
	}
}
