package api

import (
	"net/http"
	"time"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
	"github.com/sunrayhq/control-plane/internal/store"
)

type webhookTrackUsageRequest struct {
	Token string `json:"token"`
}

type webhookTrackUsageResponse struct {
	Tracked bool `json:"tracked"`
}

// handleWebhookTrackUsage increments a webhook token's usage counter. It
// rejects expired tokens even though usage tracking is otherwise a no-op
// failure mode, so an expired token's last-seen usage count stops moving.
func (s *Server) handleWebhookTrackUsage(w http.ResponseWriter, r *http.Request) (any, error) {
	var req webhookTrackUsageRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.Token == "" {
		return nil, apierrors.NewValidationError("token is required", nil)
	}

	tok, err := s.store.GetWebhookTokenByToken(r.Context(), req.Token)
	if err == store.ErrNotFound {
		return nil, apierrors.NewNotFoundError("webhook token not found", nil)
	}
	if err != nil {
		return nil, err
	}
	if !tok.Valid(time.Now().UTC()) {
		return nil, apierrors.NewValidationError("webhook token is expired", nil)
	}

	if err := s.store.IncrementWebhookTokenUsage(r.Context(), tok.ID); err != nil {
		return nil, err
	}

	s.audit.Record(r.Context(), audit.EventWebhookUsed, models.SeverityInfo, audit.Fields{
		Details: map[string]any{"host_id": tok.HostID, "webhook_token_id": tok.ID},
	})

	return webhookTrackUsageResponse{Tracked: true}, nil
}
