package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"example.com/studysync/internal/reconcile"
)

// EventUserLoggedIn is the session event that triggers a pass.
const EventUserLoggedIn = "user.logged_in"

type loginEvent struct {
	UserID string `json:"user_id"`
}

// ReconcileHandler runs a reconciliation pass for every login event. Passes that fail
// with an unreachable remote are retried under a fresh backoff policy per event.
type ReconcileHandler struct {
	passer     reconcile.Passer
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

// NewReconcileHandler constructs a handler. newBackOff is called once per event.
func NewReconcileHandler(passer reconcile.Passer, newBackOff func() backoff.BackOff, logger zerolog.Logger) *ReconcileHandler {
	return &ReconcileHandler{passer: passer, newBackOff: newBackOff, logger: logger}
}

// Handle ignores other event types. Unsuccessful passes are logged and committed: the
// next login re-runs the pass, and passes are idempotent.
func (h *ReconcileHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != EventUserLoggedIn {
		return nil
	}

	var event loginEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return fmt.Errorf("%w: login event without user_id", ErrUndecodable)
	}

	report, err := reconcile.RetryPass(ctx, h.passer, userID, h.newBackOff())
	if err != nil {
		return fmt.Errorf("reconcile on login %s: %w", userID, err)
	}

	totals := report.Totals()
	entry := h.logger.Info()
	if !report.Success {
		entry = h.logger.Warn()
	}
	entry.Str("user_id", userID).
		Bool("success", report.Success).
		Int("inserted", totals.Inserted).
		Int("failed", totals.Failed).
		Msg("login reconciliation finished")
	return nil
}
