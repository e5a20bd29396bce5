// Package health composes the server/health Checker aggregate into the
// full HealthResponse body (spec C14 / app/routers/health.py): index
// connectivity, storage writability, scheduler heartbeat freshness, and
// wordlist cardinality, plus process uptime and a version string.
package health

import (
	"os"
	"time"

	"github.com/duskvault/duskvault/internal/uptime"
	"github.com/duskvault/duskvault/server/health"
)

// Status is the coarse healthy/degraded verdict the HTTP layer maps to a
// status code.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Response is the JSON body served at GET /health/.
type Response struct {
	Status        Status            `json:"status"`
	Version       string            `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Services      map[string]string `json:"services"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	StartedAt     time.Time         `json:"started_at"`
}

// Reporter builds a Response from a checked Handler plus the uptime
// tracker, on each call.
type Reporter struct {
	Handler *health.Handler
	Uptime  *uptime.Tracker
	Version string
	Now     func() time.Time
}

// Report runs every registered checker and assembles the response body.
// Status is healthy iff every registered subsystem passes; any failure
// marks the whole service degraded. No checker is treated as
// non-critical: a registered scheduler heartbeat check degrades the
// status just as a failing index check does.
func (r *Reporter) Report() Response {
	now := r.Now()
	results := r.Handler.Check()

	services := make(map[string]string, len(results))
	status := StatusHealthy
	for name, err := range results {
		if err != nil {
			services[name] = "down: " + err.Error()
			status = StatusDegraded
		} else {
			services[name] = "ok"
		}
	}

	return Response{
		Status:        status,
		Version:       r.Version,
		Timestamp:     now,
		Services:      services,
		UptimeSeconds: r.Uptime.Seconds(now),
		StartedAt:     r.Uptime.StartedAt(),
	}
}

// StorageChecker verifies the blob base directory is writable, probed the
// same way app/routers/health.py checks storage (os.access(W_OK)): by
// attempting to create and remove a throwaway file rather than trusting a
// cached permission bit, since permissions can change underneath a
// long-running process.
type StorageChecker struct {
	BasePath string
}

// CheckHealth implements health.Checker.
func (c StorageChecker) CheckHealth() error {
	probe, err := os.CreateTemp(c.BasePath, ".health-probe-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// WordlistChecker verifies the identifier generator loaded a wordlist of
// the expected cardinality.
type WordlistChecker struct {
	Size     func() int
	WantSize int
}

// CheckHealth implements health.Checker.
func (c WordlistChecker) CheckHealth() error {
	if got := c.Size(); got != c.WantSize {
		return sizeMismatchError{got: got, want: c.WantSize}
	}
	return nil
}

type sizeMismatchError struct {
	got, want int
}

func (e sizeMismatchError) Error() string {
	return "wordlist has wrong cardinality"
}

// HeartbeatChecker verifies the reaper's heartbeat marker was written
// within the last threshold, the liveness signal for the background
// scheduler that app/services/scheduler.py's health_check_marker job
// provides.
type HeartbeatChecker struct {
	// Get returns the heartbeat marker's timestamp and whether it exists.
	Get       func() (time.Time, bool, error)
	Threshold time.Duration
	Now       func() time.Time
}

// CheckHealth implements health.Checker.
func (c HeartbeatChecker) CheckHealth() error {
	ts, ok, err := c.Get()
	if err != nil {
		return err
	}
	if !ok {
		return heartbeatMissingError{}
	}
	if c.Now().Sub(ts) > c.Threshold {
		return heartbeatStaleError{age: c.Now().Sub(ts)}
	}
	return nil
}

type heartbeatMissingError struct{}

func (heartbeatMissingError) Error() string { return "scheduler heartbeat marker missing" }

type heartbeatStaleError struct{ age time.Duration }

func (e heartbeatStaleError) Error() string { return "scheduler heartbeat marker stale" }
