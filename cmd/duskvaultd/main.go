// Command duskvaultd runs the ephemeral file-sharing service: it loads
// configuration, connects to Redis, prepares local blob storage, starts
// the background reaper, and serves HTTP until signaled to stop. The
// startup/shutdown sequence mirrors app/main.py's lifespan context
// manager.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/duskvault/duskvault/internal/blobstore"
	"github.com/duskvault/duskvault/internal/config"
	"github.com/duskvault/duskvault/internal/download"
	healthdomain "github.com/duskvault/duskvault/internal/health"
	"github.com/duskvault/duskvault/internal/httpapi"
	"github.com/duskvault/duskvault/internal/index"
	"github.com/duskvault/duskvault/internal/logging"
	"github.com/duskvault/duskvault/internal/preview"
	"github.com/duskvault/duskvault/internal/reaper"
	"github.com/duskvault/duskvault/internal/status"
	"github.com/duskvault/duskvault/internal/throttle"
	"github.com/duskvault/duskvault/internal/upload"
	"github.com/duskvault/duskvault/internal/uptime"
	"github.com/duskvault/duskvault/internal/validate"
	"github.com/duskvault/duskvault/internal/wordlist"
	"github.com/duskvault/duskvault/server"
	"github.com/duskvault/duskvault/server/health"
)

const version = "0.1.0"

func main() {
	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config_load_failed")
	}

	log.Info().Msg("app_starting")

	pool := newRedisPool(cfg)
	defer pool.Close()

	idx := index.New(pool)
	if err := idx.Ping(); err != nil {
		log.Fatal().Err(err).Msg("redis_connect_failed")
	}
	log.Info().Msg("redis_connected")

	upt := uptime.New()
	upt.Start(time.Now())
	log.Info().Msg("uptime_tracker_started")

	paths := blobstore.NewPathManager(cfg.StoragePath)
	if err := paths.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("storage_directory_init_failed")
	}
	log.Info().Str("path", cfg.StoragePath).Msg("storage_directory_initialized")

	words, err := wordlist.Load(cfg.WordlistPath)
	if err != nil {
		log.Fatal().Err(err).Msg("wordlist_load_failed")
	}

	blobs := blobstore.NewRepository(paths, cfg.ShredPasses)

	reap := &reaper.Scheduler{
		Pool:      pool,
		Paths:     paths,
		Blobs:     blobs,
		Index:     idx,
		Interval:  time.Duration(cfg.CleanupIntervalMinutes) * time.Minute,
		OrphanAge: time.Duration(cfg.OrphanAgeMinutes) * time.Minute,
		Log:       log,
	}
	reap.Start()
	log.Info().Msg("scheduler_started_successfully")

	limiter := throttle.New(pool, cfg.FailThreshold, time.Duration(cfg.BlockWindowSeconds)*time.Second)

	validators := validate.NewChain(
		validate.SizeValidator{MaxBytes: cfg.MaxFileSize},
		validate.MIMEAllowlistValidator{Allowed: cfg.AllowedMIMETypes},
	)

	uploadOrch := &upload.Orchestrator{
		Words:      words,
		Validators: validators,
		Blobs:      blobs,
		Index:      idx,
		Now:        time.Now,
	}
	downloadOrch := &download.Orchestrator{Index: idx, Blobs: blobs}
	previewOrch := &preview.Orchestrator{Index: idx}
	statusOrch := &status.Orchestrator{Index: idx, Now: time.Now}

	healthHandler := &health.Handler{}
	healthHandler.Add("redis", health.CheckerFunc(idx.Ping))
	healthHandler.Add("storage", healthdomain.StorageChecker{BasePath: cfg.StoragePath})
	healthHandler.Add("wordlist", healthdomain.WordlistChecker{Size: words.Size, WantSize: wordlist.WordCount})
	healthHandler.Add("scheduler", healthdomain.HeartbeatChecker{
		Get:       reap.Heartbeat,
		Threshold: 2 * time.Minute,
		Now:       time.Now,
	})

	reporter := &healthdomain.Reporter{
		Handler: healthHandler,
		Uptime:  upt,
		Version: version,
		Now:     time.Now,
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Upload:      uploadOrch,
		Download:    downloadOrch,
		Preview:     previewOrch,
		Status:      statusOrch,
		Throttle:    limiter,
		Health:      reporter,
		Logger:      log,
		MaxBodySize: cfg.MaxFileSize + (1 << 20),
	})

	srv := server.New(router, &server.Options{
		HealthChecks: map[string]health.Checker{
			"redis":    health.CheckerFunc(idx.Ping),
			"storage":  healthdomain.StorageChecker{BasePath: cfg.StoragePath},
			"wordlist": healthdomain.WordlistChecker{Size: words.Size, WantSize: wordlist.WordCount},
		},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		errCh <- srv.ListenAndServe(cfg.ListenAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server_exited")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("application_shutdown_started")

		reap.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("server_shutdown_failed")
		}
	}

	log.Info().Msg("redis_connection_closed")
}

// newRedisPool builds the pool the reaper, throttle limiter and index all
// share: a bounded connection count, a dial that fails fast and keeps its
// TCP connection alive, and idle connections re-verified on the interval
// cfg.RedisHealthCheckIntervalSeconds names rather than reused blind.
func newRedisPool(cfg *config.Config) *redis.Pool {
	dialTimeout := time.Duration(cfg.RedisDialTimeoutSeconds) * time.Second
	healthInterval := time.Duration(cfg.RedisHealthCheckIntervalSeconds) * time.Second
	dialer := &net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: healthInterval,
	}

	return &redis.Pool{
		MaxIdle:     8,
		MaxActive:   cfg.RedisMaxConnections,
		IdleTimeout: 5 * time.Minute,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(cfg.RedisURL,
				redis.DialConnectTimeout(dialTimeout),
				redis.DialNetDial(dialer.Dial),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < healthInterval {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}
