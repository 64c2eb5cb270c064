// Package httphandler is the HTTP driving adapter: the relay endpoint that
// forwards Bot API calls through the dispatcher, plus the read-only
// diagnostics API (liveness and per-credential quota usage).
package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tgrelay/tgrelay/internal/application"
	"github.com/tgrelay/tgrelay/internal/domain/port/driven"
)

// OperationBuilder turns a Bot API method name and parameters into an
// executable operation. Satisfied by the telegram client.
type OperationBuilder interface {
	Invoke(method string, params url.Values) driven.Operation
}

// methodPattern constrains relayed method names to the Bot API's camelCase
// shape, keeping arbitrary path segments out of upstream URLs.
var methodPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

// Handler is the HTTP driving adapter.
type Handler struct {
	dispatcher *application.Dispatcher
	upstream   OperationBuilder
	stateStore driven.StateStore
	startedAt  time.Time
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(dispatcher *application.Dispatcher, upstream OperationBuilder, stateStore driven.StateStore, logger *slog.Logger) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		upstream:   upstream,
		stateStore: stateStore,
		startedAt:  time.Now(),
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/relay/{method}", h.Relay)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/status", h.Status)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Relay forwards one Bot API call through the dispatcher. Form parameters
// (query or body) are passed to the upstream method as-is. Bot API read
// methods (get*) are dispatched with an idempotency key derived from the
// method and its parameters, so repeated lookups within the TTL are served
// from the cache; everything else bypasses the cache.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	method := r.PathValue("method")
	if !methodPattern.MatchString(method) {
		writeError(w, http.StatusBadRequest, "invalid method name")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "malformed form parameters")
		return
	}

	key := ""
	if strings.HasPrefix(method, "get") {
		key = method + "?" + r.Form.Encode()
	}

	result, err := h.dispatcher.Do(r.Context(), key, h.upstream.Invoke(method, r.Form))
	if err != nil {
		h.writeRelayError(w, method, err)
		return
	}

	writeJSON(w, http.StatusOK, RelayResponse{OK: true, Result: result})
}

// writeRelayError maps dispatcher failures onto HTTP statuses: caller aborts
// become 504, permanent upstream rejections 502 with the upstream
// description, and exhausted retry budgets 502.
func (h *Handler) writeRelayError(w http.ResponseWriter, method string, err error) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request cancelled")
	case driven.IsPermanent(err):
		h.logger.Warn("relay rejected upstream", "method", method, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("relay failed", "method", method, "error", err)
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}

// Health reports liveness, pool size, cache occupancy, and the last
// persisted heartbeat.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.dispatcher.Status()

	resp := HealthResponse{
		Status:       "ok",
		Credentials:  len(status.Credentials),
		CacheEntries: status.CacheEntries,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		Time:         time.Now().UTC().Format(time.RFC3339),
	}

	if h.stateStore != nil {
		heartbeat, err := h.stateStore.LastHeartbeat(r.Context())
		if err != nil {
			h.logger.Error("failed to load heartbeat", "error", err)
		} else if !heartbeat.IsZero() {
			resp.LastHeartbeat = heartbeat.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Status returns the per-credential usage snapshot.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	status := h.dispatcher.Status()

	creds := make([]CredentialStatusResponse, 0, len(status.Credentials))
	for _, c := range status.Credentials {
		creds = append(creds, toCredentialStatusResponse(c))
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Credentials:  creds,
		CacheEntries: status.CacheEntries,
	})
}
