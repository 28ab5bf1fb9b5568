// Package handler exposes a dispatch.Provider over HTTP.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ewbankkit/wascc-keyvalue/dispatch"
	"github.com/ewbankkit/wascc-keyvalue/store"
)

// ActorHeader names the calling actor. Requests without it run as
// DefaultActor. The system actor can never be named this way; lifecycle
// operations go through the admin route instead.
const (
	ActorHeader  = "X-Actor"
	DefaultActor = "anonymous"
)

// maxBody caps request payloads.
const maxBody = 1 << 20

// Handler holds the server dependencies and registers routes.
type Handler struct {
	provider   *dispatch.Provider
	logger     *slog.Logger
	mux        *http.ServeMux
	adminToken string
}

// Option configures a Handler.
type Option func(*Handler)

// WithAdminToken enables POST /v1/admin/{op} for callers presenting
// "Authorization: Bearer <token>". Without a token the admin route is off.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

// New creates a Handler and wires up all routes.
func New(p *dispatch.Provider, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{provider: p, logger: logger, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(h)
	}
	h.routes()
	return h
}

// ServeHTTP makes Handler an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rec, r)
	h.logger.InfoContext(r.Context(), "request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /healthz", h.health)
	h.mux.HandleFunc("POST /v1/call/{op}", h.call)
	h.mux.HandleFunc("POST /v1/admin/{op}", h.admin)
}

// ---------- helpers ----------

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.DebugContext(r.Context(), "failed to write response", "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, map[string]string{"error": msg})
}

// writeRaw writes an already encoded JSON body.
func (h *Handler) writeRaw(w http.ResponseWriter, r *http.Request, body []byte) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.DebugContext(r.Context(), "failed to write response", "path", r.URL.Path, "error", err)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
}

// statusFor maps dispatch and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidArgument), errors.Is(err, dispatch.ErrBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTypeMismatch):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrUnboundActor):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, dispatch.ErrBadDispatch):
		return http.StatusNotFound
	case errors.Is(err, dispatch.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rl *dispatch.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(rl.RetryAfter.Seconds()))))
	}
	h.writeError(w, r, statusFor(err), err.Error())
}

// authorized reports whether r carries the admin bearer token.
func (h *Handler) authorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

// ---------- endpoints ----------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":     "ok",
		"capability": h.provider.CapabilityID(),
	})
}

func (h *Handler) call(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(ActorHeader)
	if actor == "" {
		actor = DefaultActor
	}
	if actor == dispatch.SystemActor {
		h.writeError(w, r, http.StatusForbidden, "actor "+strconv.Quote(actor)+" is reserved")
		return
	}

	msg, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	resp, err := h.provider.HandleCall(r.Context(), actor, r.PathValue("op"), msg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeRaw(w, r, resp)
}

// admin runs lifecycle operations as the system actor.
func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	if h.adminToken == "" {
		h.writeError(w, r, http.StatusNotFound, "admin api disabled")
		return
	}
	if !h.authorized(r) {
		h.writeError(w, r, http.StatusUnauthorized, "invalid admin token")
		return
	}
	op := r.PathValue("op")
	if op != dispatch.OpConfigure && op != dispatch.OpRemoveActor {
		h.writeError(w, r, http.StatusNotFound, "unknown admin operation "+strconv.Quote(op))
		return
	}

	msg, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	resp, err := h.provider.HandleCall(r.Context(), dispatch.SystemActor, op, msg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeRaw(w, r, resp)
}
