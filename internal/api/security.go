package api

import (
	"net/http"

	"github.com/sunrayhq/control-plane/internal/apierrors"
	"github.com/sunrayhq/control-plane/internal/audit"
	"github.com/sunrayhq/control-plane/internal/models"
)

// securityEventTypes is the subset of the closed audit taxonomy a worker is
// allowed to report directly; everything else is only ever written by the
// control plane itself.
var securityEventTypes = map[string]audit.EventType{
	"cross_domain_session":  audit.EventCrossDomainSession,
	"host_id_mismatch":      audit.EventHostIDMismatch,
	"unmanaged_host_access": audit.EventUnmanagedHostAccess,
}

type securityEventRequest struct {
	EventType string         `json:"event_type"`
	Username  string         `json:"username"`
	HostID    string         `json:"host_id"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details"`
}

type securityEventResponse struct {
	Recorded bool `json:"recorded"`
}

// handleSecurityEvent appends a worker-observed security event to the audit
// log (spec.md §6). The worker names one of a small closed set of event
// types; arbitrary strings are rejected rather than silently accepted.
func (s *Server) handleSecurityEvent(w http.ResponseWriter, r *http.Request) (any, error) {
	var req securityEventRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	eventType, ok := securityEventTypes[req.EventType]
	if !ok {
		return nil, apierrors.NewValidationError("unknown event_type for a worker-reported security event", nil)
	}

	severity := models.SeverityWarning
	if req.Severity != "" {
		switch models.Severity(req.Severity) {
		case models.SeverityInfo, models.SeverityWarning, models.SeverityError, models.SeverityCritical:
			severity = models.Severity(req.Severity)
		default:
			return nil, apierrors.NewValidationError("unknown severity", nil)
		}
	}

	details := req.Details
	if details == nil {
		details = map[string]any{}
	}
	details["host_id"] = req.HostID

	s.audit.Record(r.Context(), eventType, severity, audit.Fields{
		Username:  req.Username,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Details:   details,
	})

	return securityEventResponse{Recorded: true}, nil
}
