package api

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// handleStatus is the unauthenticated liveness probe.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) (any, error) {
	return statusResponse{Status: "ok", Time: time.Now().UTC()}, nil
}

type healthResponse struct {
	Status      string    `json:"status"`
	UptimeS     float64   `json:"uptime_s"`
	ActiveUsers int       `json:"active_users"`
	ActiveHosts int       `json:"active_hosts"`
	CheckedAt   time.Time `json:"checked_at"`
}

// handleHealth performs a deeper, authenticated health check: it exercises
// the database by counting active users and hosts.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) (any, error) {
	users, err := s.store.ListActiveUsers(r.Context())
	if err != nil {
		return nil, err
	}
	hosts, err := s.store.ListActiveHosts(r.Context())
	if err != nil {
		return nil, err
	}
	return healthResponse{
		Status:      "ok",
		UptimeS:     time.Since(s.startedAt).Seconds(),
		ActiveUsers: len(users),
		ActiveHosts: len(hosts),
		CheckedAt:   time.Now().UTC(),
	}, nil
}
