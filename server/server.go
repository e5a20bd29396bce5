// Package server provides a preconfigured HTTP server with liveness and
// readiness endpoints, tracing, and graceful shutdown, generalized from
// the teacher's server.Server to drop its requestlog/httplistener
// dependencies (requestlog's NCSA format is replaced by the zerolog
// request middleware in internal/logging; httplistener, referenced by the
// original but absent from the retrieved dependency tree, is replaced by
// a direct net.Listen call in DefaultDriver).
package server

import (
	"context"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"go.opencensus.io/trace"

	"github.com/duskvault/duskvault/server/driver"
	"github.com/duskvault/duskvault/server/health"
)

// Server is a preconfigured HTTP server with diagnostic hooks. The zero
// value is a server with the default options.
type Server struct {
	handler       http.Handler
	healthHandler health.Handler
	te            trace.Exporter
	sampler       trace.Sampler
	once          sync.Once
	driver        driver.Server
}

// Options configures a Server.
type Options struct {
	// HealthChecks are registered under their given name and run when the
	// /healthz/readiness endpoint is requested.
	HealthChecks map[string]health.Checker

	// TraceExporter exports sampled trace spans.
	TraceExporter trace.Exporter

	// DefaultSamplingPolicy decides whether a given span should be sampled
	// and exported.
	DefaultSamplingPolicy trace.Sampler

	// Driver serves HTTP requests.
	Driver driver.Server
}

// New creates a new server. New(h, nil) is the same as &Server{handler: h}.
func New(h http.Handler, opts *Options) *Server {
	srv := &Server{handler: h}
	if opts != nil {
		srv.te = opts.TraceExporter
		for name, c := range opts.HealthChecks {
			srv.healthHandler.Add(name, c)
		}
		srv.sampler = opts.DefaultSamplingPolicy
		srv.driver = opts.Driver
	}
	return srv
}

func (srv *Server) init() {
	srv.once.Do(func() {
		if srv.te != nil {
			trace.RegisterExporter(srv.te)
		}
		if srv.sampler != nil {
			trace.ApplyConfig(trace.Config{DefaultSampler: srv.sampler})
		}
		if srv.driver == nil {
			srv.driver = NewDefaultDriver()
		}
		if srv.handler == nil {
			srv.handler = http.DefaultServeMux
		}
	})
}

// ListenAndServe wraps the configured handler with a tracing span per
// request and mounts /healthz/liveness and /healthz/readiness, then hands
// off to the configured driver.
func (srv *Server) ListenAndServe(addr string) error {
	srv.init()

	hr := "/healthz"
	hcMux := http.NewServeMux()
	hcMux.HandleFunc(path.Join(hr, "liveness"), health.HandleLive)
	hcMux.Handle(path.Join(hr, "readiness"), &srv.healthHandler)

	mux := http.NewServeMux()
	mux.Handle(hr+"/", hcMux)
	mux.Handle("/", tracingHandler{srv.handler})

	return srv.driver.ListenAndServe(addr, mux)
}

// Shutdown gracefully shuts down the server without interrupting active
// connections.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.driver == nil {
		return nil
	}
	return srv.driver.Shutdown(ctx)
}

// tracingHandler wraps a http.Handler with an OpenCensus span per request.
type tracingHandler struct {
	h http.Handler
}

func (h tracingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), r.URL.Host+r.URL.Path)
	defer span.End()

	r = r.WithContext(ctx)
	h.h.ServeHTTP(w, r)
}

// DefaultDriver implements driver.Server over a plain net.Listener. The
// zero value is a valid http.Server.
type DefaultDriver struct {
	Net    string // "tcp" or "unix"
	Server http.Server
}

// NewDefaultDriver creates a driver with the service's standard timeouts.
func NewDefaultDriver() *DefaultDriver {
	return &DefaultDriver{
		Net: "tcp",
		Server: http.Server{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// ListenAndServe listens on addr and serves h until the listener is
// closed by Shutdown.
func (dd *DefaultDriver) ListenAndServe(addr string, h http.Handler) error {
	network := dd.Net
	if network == "" {
		network = "tcp"
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	dd.Server.Handler = h
	return dd.Server.Serve(ln)
}

// Shutdown gracefully shuts down the underlying http.Server.
func (dd *DefaultDriver) Shutdown(ctx context.Context) error {
	return dd.Server.Shutdown(ctx)
}
