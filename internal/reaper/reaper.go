// Package reaper implements the periodic orphan sweep (spec C13): any
// on-disk upload directory with no matching index record, older than the
// configured grace window, is secure-deleted. Directory listing uses
// os.ReadDir rather than the teacher's raw syscall.ReadDirent walker
// (posix/list-dir_unix.go) — that package earns its keep at object-store
// scale; this reaper only ever lists a few hundred upload directories per
// cycle, so the stdlib call is the right tool and syscall-level batching
// would only add platform-specific code for no measurable gain.
package reaper

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"

	"github.com/duskvault/duskvault/internal/blobstore"
	"github.com/duskvault/duskvault/internal/index"
)

const (
	heartbeatInterval = time.Minute
	heartbeatKey       = "health:scheduler_heartbeat"
	lastCleanupKey     = "health:last_cleanup"
)

// Scheduler runs the orphan sweep and the heartbeat marker on independent
// tickers, matching the reference's two-job AsyncIOScheduler setup
// (app/services/scheduler.py): max_instances=1 is enforced here with an
// atomic running flag rather than a scheduler library. Missed ticks are
// not replayed: time.Ticker keeps at most one pending tick, so ticks that
// fall due while a cycle is running collapse into a single run after it.
type Scheduler struct {
	Pool      *redis.Pool
	Paths     *blobstore.PathManager
	Blobs     *blobstore.Repository
	Index     *index.Index
	Interval  time.Duration
	OrphanAge time.Duration
	Log       zerolog.Logger

	running int32
	stop    chan struct{}
}

// Start launches the cleanup and heartbeat loops in background goroutines.
// Stop shuts them both down.
func (s *Scheduler) Start() {
	s.stop = make(chan struct{})
	go s.cleanupLoop()
	go s.heartbeatLoop()
}

// Stop terminates both background loops. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) cleanupLoop() {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

func (s *Scheduler) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.writeMarker(heartbeatKey)
		}
	}
}

// runCycle scans the blob base for orphaned upload directories. A tick
// delivered late still runs a full cycle. A call made while another cycle
// is still in flight returns without scanning, enforced by the running
// flag below.
func (s *Scheduler) runCycle() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.Log.Warn().Msg("cleanup cycle still running, skipping this tick")
		return
	}
	defer atomic.StoreInt32(&s.running, 0)

	entries, err := os.ReadDir(s.Paths.BasePath)
	if err != nil {
		s.Log.Error().Err(err).Msg("reaper: could not list blob base")
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == filepath.Base(s.Paths.TempPath) {
			continue
		}
		s.sweepOne(entry)
	}

	s.writeMarker(lastCleanupKey)
}

func (s *Scheduler) sweepOne(entry os.DirEntry) {
	id := entry.Name()

	exists, err := s.Index.Exists(id)
	if err != nil {
		s.Log.Error().Err(err).Str("identifier", id).Msg("reaper: index probe failed")
		return
	}
	if exists {
		return
	}

	info, err := entry.Info()
	if err != nil {
		s.Log.Error().Err(err).Str("identifier", id).Msg("reaper: stat failed")
		return
	}
	age := time.Since(info.ModTime())
	if age <= s.OrphanAge {
		return
	}

	if err := s.Blobs.Delete(id); err != nil {
		s.Log.Error().Err(err).Str("identifier", id).Msg("reaper: secure delete failed")
		return
	}
	s.Log.Info().Str("identifier", id).Dur("age", age).Msg("reaper: removed orphaned upload")
}

// Heartbeat reports when the scheduler last ticked, for internal/health's
// HeartbeatChecker.
func (s *Scheduler) Heartbeat() (time.Time, bool, error) {
	return s.readMarker(heartbeatKey)
}

func (s *Scheduler) readMarker(key string) (time.Time, bool, error) {
	conn := s.Pool.Get()
	defer conn.Close()
	raw, err := redis.String(conn.Do("GET", key))
	if err == redis.ErrNil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

func (s *Scheduler) writeMarker(key string) {
	conn := s.Pool.Get()
	defer conn.Close()
	if _, err := conn.Do("SET", key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.Log.Error().Err(err).Str("key", key).Msg("reaper: could not write marker")
	}
}
