package api

import (
	"net/http"

	"github.com/sunrayhq/control-plane/internal/apierrors"
)

type registerWorkerRequest struct {
	WorkerName string `json:"worker_name"`
	Hostname   string `json:"hostname"`
}

type registerWorkerResponse struct {
	HostID   string `json:"host_id"`
	WorkerID string `json:"worker_id"`
	Migrated bool   `json:"migrated"`
}

// handleRegisterWorker wraps internal/worker.Registrar.Register (spec.md
// §4.6). A worker calls this once per host it serves, at startup and on any
// reconnect. The worker identifies itself through the X-Worker-ID header;
// the body's worker_name is accepted as a fallback for older workers that
// predate the header.
func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) (any, error) {
	var req registerWorkerRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if name := r.Header.Get("X-Worker-ID"); name != "" {
		req.WorkerName = name
	}
	if req.WorkerName == "" || req.Hostname == "" {
		return nil, apierrors.NewValidationError("worker_name and hostname are required", nil)
	}

	result, err := s.workers.Register(r.Context(), req.WorkerName, req.Hostname)
	if err != nil {
		return nil, err
	}
	return registerWorkerResponse{HostID: result.HostID, WorkerID: result.WorkerID, Migrated: result.Migrated}, nil
}
