package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tgrelay/tgrelay/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RelayResponse is the body of a successful POST /api/v1/relay/{method}.
// Result carries the upstream method's raw JSON result.
type RelayResponse struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Credentials   int    `json:"credentials"`
	CacheEntries  int    `json:"cache_entries"`
	Uptime        string `json:"uptime"`
	LastHeartbeat string `json:"last_heartbeat,omitempty"`
	Time          string `json:"time"`
}

// CredentialStatusResponse is the JSON representation of one credential's
// usage snapshot. Tokens are never exposed, only ordinal indexes.
type CredentialStatusResponse struct {
	Index             int    `json:"index"`
	WindowCount       int    `json:"window_count"`
	WindowResetAt     string `json:"window_reset_at"`
	LastUsedAt        string `json:"last_used_at,omitempty"`
	ConsecutiveErrors int    `json:"consecutive_errors"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Credentials  []CredentialStatusResponse `json:"credentials"`
	CacheEntries int                        `json:"cache_entries"`
}

func toCredentialStatusResponse(c model.CredentialStatus) CredentialStatusResponse {
	resp := CredentialStatusResponse{
		Index:             c.Index,
		WindowCount:       c.WindowCount,
		WindowResetAt:     c.WindowResetAt.UTC().Format(time.RFC3339),
		ConsecutiveErrors: c.ConsecutiveErrors,
	}
	if !c.LastUsedAt.IsZero() {
		resp.LastUsedAt = c.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
