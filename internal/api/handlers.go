// Package api exposes HTTP handlers for triggering reconciliation passes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"example.com/studysync/internal/domain"
	"example.com/studysync/internal/reconcile"
)

// Handler runs passes on behalf of HTTP callers such as the login flow.
type Handler struct {
	passer reconcile.Passer
	logger zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(passer reconcile.Passer, logger zerolog.Logger) *Handler {
	return &Handler{passer: passer, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/users/", h.userAction)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// userAction routes /v1/users/{id}/reconcile.
func (h *Handler) userAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, action, ok := strings.Cut(rest, "/")
	if !ok || action != "reconcile" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.reconcile(w, r, userID)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := h.passer.Reconcile(r.Context(), userID)
	switch {
	case err == nil:
	case errors.Is(err, reconcile.ErrEmptyUserID):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, domain.ErrRemoteUnavailable):
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("reconcile rejected, remote unavailable")
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, string(domain.RemoteUnavailable), "remote store unavailable, retry later")
		return
	default:
		h.logger.Error().Err(err).Str("user_id", userID).Msg("reconcile failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "reconciliation failed")
		return
	}

	writeJSON(w, http.StatusOK, ReconcileResponse{
		Report:    report,
		Summary:   summaryView(report),
		RetryKeys: report.RetryKeys(),
	})
}

// ReconcileResponse is the report of a pass plus derived views.
type ReconcileResponse struct {
	*reconcile.Report
	Summary   map[domain.Kind]CountsView `json:"summary"`
	RetryKeys map[domain.Kind][]string   `json:"retry_keys,omitempty"`
}

// CountsView is one kind's counters.
type CountsView struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Deferred int `json:"deferred"`
}

func summaryView(report *reconcile.Report) map[domain.Kind]CountsView {
	out := make(map[domain.Kind]CountsView, len(domain.Kinds))
	for kind, c := range report.Summary() {
		out[kind] = CountsView{Inserted: c.Inserted, Skipped: c.Skipped, Failed: c.Failed, Deferred: c.Deferred}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
