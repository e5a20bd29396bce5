// Package throttle implements the per-scope, per-source-IP failure
// throttle (spec C9): fails:<scope>:<ip> counts recent misses,
// block:<scope>:<ip> flags a caller as blocked once the threshold is
// crossed.
package throttle

import (
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/duskvault/duskvault/internal/vaulterr"
)

// failWindow bounds how long a run of misses stays counted before it
// expires on its own, matching the reference's fixed 600-second window.
const failWindow = 600 * time.Second

// Scope names the three independent counters the HTTP routes maintain.
const (
	ScopeDownload = "download"
	ScopePreview  = "preview"
	ScopeStatus   = "status"
)

// Limiter tracks failure counts and block flags over a connection pool.
type Limiter struct {
	pool        *redis.Pool
	threshold   int
	blockWindow time.Duration
}

// New returns a Limiter that blocks a (scope, ip) pair for blockWindow
// once it accumulates threshold misses within the fail window.
func New(pool *redis.Pool, threshold int, blockWindow time.Duration) *Limiter {
	return &Limiter{pool: pool, threshold: threshold, blockWindow: blockWindow}
}

func failKey(scope, ip string) string  { return "fails:" + scope + ":" + ip }
func blockKey(scope, ip string) string { return "block:" + scope + ":" + ip }

// Blocked reports whether (scope, ip) currently carries a block flag, and
// if so the number of seconds remaining before it clears.
func (l *Limiter) Blocked(scope, ip string) (blocked bool, retryAfterSeconds int64, err error) {
	conn := l.pool.Get()
	defer conn.Close()

	ttl, err := redis.Int64(conn.Do("TTL", blockKey(scope, ip)))
	if err != nil {
		return false, 0, vaulterr.New(vaulterr.Unavailable, err, 1, "throttle: transport error")
	}
	if ttl < 0 {
		return false, 0, nil
	}
	return true, ttl, nil
}

// RegisterMiss records a failed lookup for (scope, ip). It increments the
// miss counter, (re)arms its expiry, and sets the block flag once the
// threshold is reached.
func (l *Limiter) RegisterMiss(scope, ip string) error {
	conn := l.pool.Get()
	defer conn.Close()

	key := failKey(scope, ip)
	count, err := redis.Int(conn.Do("INCR", key))
	if err != nil {
		return vaulterr.New(vaulterr.Unavailable, err, 1, "throttle: transport error")
	}
	if _, err := conn.Do("EXPIRE", key, int(failWindow/time.Second)); err != nil {
		return vaulterr.New(vaulterr.Unavailable, err, 1, "throttle: transport error")
	}

	if count >= l.threshold {
		windowSeconds := int(l.blockWindow / time.Second)
		if _, err := conn.Do("SETEX", blockKey(scope, ip), windowSeconds, "1"); err != nil {
			return vaulterr.New(vaulterr.Unavailable, err, 1, "throttle: transport error")
		}
	}
	return nil
}
