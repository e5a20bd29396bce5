// Package httpapi wires the orchestrators into the HTTP surface (spec
// §6): upload, preview, download, status and health, routed with chi and
// go-chi/cors the way kopexa-grc-common/khttp/router composes its default
// middleware stack, with request-scoped zerolog logging from
// internal/logging in place of that package's own logger.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	healthdomain "github.com/duskvault/duskvault/internal/health"
	"github.com/duskvault/duskvault/internal/logging"
	"github.com/duskvault/duskvault/internal/preview"
	"github.com/duskvault/duskvault/internal/status"
	"github.com/duskvault/duskvault/internal/throttle"
	"github.com/duskvault/duskvault/internal/upload"
	"github.com/duskvault/duskvault/internal/vaulterr"
	"github.com/duskvault/duskvault/internal/wordlist"

	"github.com/duskvault/duskvault/internal/download"
)

// Deps bundles every orchestrator and cross-cutting dependency the
// router needs.
type Deps struct {
	Upload      *upload.Orchestrator
	Download    *download.Orchestrator
	Preview     *preview.Orchestrator
	Status      *status.Orchestrator
	Throttle    *throttle.Limiter
	Health      *healthdomain.Reporter
	Logger      zerolog.Logger
	MaxBodySize int64
}

// NewRouter builds the full chi.Mux: recovery, request logging, security
// headers, permissive CORS (the reference allows every origin), then the
// five routes.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(d.Logger))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/upload/", d.handleUpload)
	r.Get("/preview/{key}", d.handlePreview)
	r.Get("/download/{key}", d.handleDownload)
	r.Get("/status/{key}", d.handleStatus)
	r.Get("/health/", d.handleHealth)

	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// statusForCode maps the internal error taxonomy onto HTTP statuses,
// uniformly across every handler.
func statusForCode(c vaulterr.Code) int {
	switch c {
	case vaulterr.NotFound:
		return http.StatusNotFound
	case vaulterr.Exhausted:
		return http.StatusGone
	case vaulterr.InvalidArgument:
		return http.StatusBadRequest
	case vaulterr.ResourceExhausted:
		return http.StatusTooManyRequests
	case vaulterr.FailedPrecondition:
		return http.StatusInternalServerError
	case vaulterr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientIP extracts the caller's address, preferring X-Forwarded-For the
// way app/core/rate_limiting.py's get_client_ip does for deployments
// behind a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// checkThrottle enforces the block/miss protocol for scope, writing a 429
// and returning false when the caller should stop handling the request.
func (d Deps) checkThrottle(w http.ResponseWriter, r *http.Request, scope string) bool {
	ip := clientIP(r)
	blocked, retryAfter, err := d.Throttle.Blocked(scope, ip)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "throttle check failed")
		return false
	}
	if blocked {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		writeJSON(w, http.StatusTooManyRequests, struct {
			Error             string `json:"error"`
			RetryAfterSeconds int64  `json:"retry_after_seconds"`
		}{"too many failed attempts, temporarily blocked", retryAfter})
		return false
	}
	return true
}

func (d Deps) registerMiss(scope string, r *http.Request) {
	if err := d.Throttle.RegisterMiss(scope, clientIP(r)); err != nil {
		d.Logger.Error().Err(err).Msg("throttle: failed to register miss")
	}
}

type uploadResponse struct {
	Key         string    `json:"key"`
	PreviewURL  string    `json:"preview_url"`
	DownloadURL string    `json:"download_url"`
	Expiry      time.Time `json:"expiry"`
	Uses        int       `json:"uses"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	SHA256      string    `json:"sha256"`
}

func (d Deps) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, d.MaxBodySize)
	if err := r.ParseMultipartForm(d.MaxBodySize); err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	expiryMinutes, _ := strconv.Atoi(r.FormValue("expiry"))
	uses, _ := strconv.Atoi(r.FormValue("uses"))

	result, err := d.Upload.Run(upload.Request{
		Content:       content,
		DeclaredMIME:  header.Header.Get("Content-Type"),
		Filename:      header.Filename,
		ExpiryMinutes: expiryMinutes,
		Uses:          uses,
		SourceIP:      clientIP(r),
	})
	if err != nil {
		var exhausted *wordlist.ExhaustedAttemptsError
		if errors.As(err, &exhausted) {
			d.Logger.Error().Int("max_attempts", exhausted.MaxAttempts).
				Msg("identifier space exhausted, wordlist needs more entries")
		}
		code := vaulterr.Classify(err)
		writeError(w, statusForCode(code), errMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Key:         result.Identifier,
		PreviewURL:  result.PreviewURL,
		DownloadURL: result.DownloadURL,
		Expiry:      result.ExpiryAt,
		Uses:        result.Uses,
		Filename:    result.Filename,
		Size:        result.Size,
		CreatedAt:   result.CreatedAt,
		SHA256:      result.SHA256,
	})
}

type previewResponse struct {
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	MIMEType    string    `json:"mime_type"`
	Uses        int       `json:"uses,omitempty"`
	MinutesLeft int64     `json:"minutes_left"`
	DownloadURL string    `json:"download_url"`
	CurlExample string    `json:"curl_example"`
	CreatedAt   time.Time `json:"created_at"`
	SHA256      string    `json:"sha256"`
}

func (d Deps) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !d.checkThrottle(w, r, throttle.ScopePreview) {
		return
	}
	id := chi.URLParam(r, "key")

	result, err := d.Preview.Run(id)
	if err != nil {
		d.registerMiss(throttle.ScopePreview, r)
		var already *previewAlreadySeen
		if errors.As(err, &already) {
			writeError(w, http.StatusNotFound, "this link has already been previewed")
			return
		}
		code := vaulterr.Classify(err)
		writeError(w, statusForCode(code), errMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Key:         result.Identifier,
		Filename:    result.Filename,
		Size:        result.Size,
		MIMEType:    result.MIMEType,
		MinutesLeft: result.MinutesLeft,
		DownloadURL: result.DownloadURL,
		CurlExample: result.CurlExample,
		CreatedAt:   result.CreatedAt,
		SHA256:      result.SHA256,
	})
}

func (d Deps) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !d.checkThrottle(w, r, throttle.ScopeDownload) {
		return
	}
	id := chi.URLParam(r, "key")

	result, err := d.Download.Run(id)
	if err != nil {
		code := vaulterr.Classify(err)
		if code == vaulterr.NotFound {
			d.registerMiss(throttle.ScopeDownload, r)
		}
		var integrity *integrityFailure
		if errors.As(err, &integrity) {
			writeJSON(w, http.StatusInternalServerError, struct {
				Error    string `json:"error"`
				Expected string `json:"expected_sha256"`
				Got      string `json:"actual_sha256"`
			}{"INTEGRITY_CHECK_FAILED", integrity.Expected, integrity.Got})
			return
		}
		writeError(w, statusForCode(code), errMessage(err))
		return
	}

	if result.Remaining == 0 {
		go func(id string) {
			if err := d.Download.Cleanup(id); err != nil {
				d.Logger.Error().Err(err).Str("identifier", id).Msg("post-download cleanup failed")
			}
		}(id)
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Type", result.MIMEType)
	w.Header().Set("X-SHA256", result.SHA256)
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(result.Plaintext)
}

type statusResponse struct {
	Key           string     `json:"key"`
	Status        string     `json:"status"`
	RemainingUses int        `json:"remaining_uses"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsAccessible  bool       `json:"is_accessible"`
}

func (d Deps) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !d.checkThrottle(w, r, throttle.ScopeStatus) {
		return
	}
	id := chi.URLParam(r, "key")

	result, err := d.Status.Run(id)
	if err != nil {
		code := vaulterr.Classify(err)
		writeError(w, statusForCode(code), errMessage(err))
		return
	}
	if result.Missing {
		d.registerMiss(throttle.ScopeStatus, r)
	}

	resp := statusResponse{
		Key:           result.Identifier,
		Status:        string(result.State),
		RemainingUses: result.RemainingUses,
		IsAccessible:  result.IsAccessible,
	}
	if result.HasExpiresAt {
		resp.ExpiresAt = &result.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d Deps) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := d.Health.Report()
	code := http.StatusOK
	if resp.Status != healthdomain.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func errMessage(err error) string {
	var ve *vaulterr.Error
	if errors.As(err, &ve) && ve.Message() != "" {
		return ve.Message()
	}
	return err.Error()
}

// previewAlreadySeen and integrityFailure let this package errors.As
// against the orchestrators' concrete error types without importing them
// purely for type assertion — both are satisfied via local aliases so the
// handler code above reads uniformly.
type previewAlreadySeen = preview.AlreadyPreviewedError

type integrityFailure = download.IntegrityError
