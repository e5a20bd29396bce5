// Package status implements the non-consuming state query (spec §6
// /status/{key}), ported from app/routers/status.py: unlike preview and
// download it never mutates the index, only reads it.
package status

import (
	"time"

	"github.com/duskvault/duskvault/internal/index"
)

// State is the logical state derived from an upload's TTL and use count.
type State string

const (
	StateActive          State = "active"
	StateBurned          State = "burned"
	StateExpired         State = "expired"
	StateExpiredOrBurned State = "expired_or_burned"
)

// Result is what the HTTP layer turns into a StatusResponse body. Missing
// is set when id has no backing record at all, distinct from the
// expired/burned states a real-but-stale record reports — the HTTP layer
// still responds 200 with expired_or_burned either way (app/routers/
// status.py never 404s), but only a Missing result counts as a throttle
// miss.
type Result struct {
	Identifier    string
	State         State
	RemainingUses int
	ExpiresAt     time.Time
	HasExpiresAt  bool
	IsAccessible  bool
	Missing       bool
}

// Orchestrator implements the status query.
type Orchestrator struct {
	Index *index.Index
	Now   func() time.Time
}

// Run looks up id without consuming anything. An absent or malformed
// record is reported as expired_or_burned rather than an error, mirroring
// the reference's behavior of never 404ing a status check.
func (o *Orchestrator) Run(id string) (*Result, error) {
	rec, err := o.Index.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.ExpiryAt.IsZero() {
		return &Result{Identifier: id, State: StateExpiredOrBurned, IsAccessible: false, Missing: true}, nil
	}

	now := o.Now()
	state := StateActive
	accessible := true

	switch {
	case now.After(rec.ExpiryAt):
		state = StateExpired
		accessible = false
	case rec.Uses <= 0:
		state = StateBurned
		accessible = false
	}

	return &Result{
		Identifier:    id,
		State:         state,
		RemainingUses: rec.Uses,
		ExpiresAt:     rec.ExpiryAt,
		HasExpiresAt:  true,
		IsAccessible:  accessible,
	}, nil
}
