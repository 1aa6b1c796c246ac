package api

import (
	"net/http"

	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
)

// handleConfigSnapshot serves the full worker-consumable configuration
// document (spec.md §4.8).
func (s *Server) handleConfigSnapshot(w http.ResponseWriter, r *http.Request) (any, error) {
	doc, err := s.snapshots.Build(r.Context())
	if err != nil {
		return nil, err
	}

	key := apiKeyFrom(r.Context())
	fields := audit.Fields{Details: map[string]any{"host_count": len(doc.Hosts), "user_count": len(doc.Users)}}
	if key != nil {
		fields.APIKeyID = key.ID
	}
	s.audit.Record(r.Context(), audit.EventConfigFetched, models.SeverityInfo, fields)

	return doc, nil
}
