package api

import (
	"net/http"

	"github.com/nerrad567/iotlink/internal/node"
)

// brokerResponse is returned by the broker actions.
type brokerResponse struct {
	Connected  bool      `json:"connected"`
	Closed     *bool     `json:"closed,omitempty"`
	State      string    `json:"state"`
	ReturnCode node.Code `json:"return_code"`
	LastError  node.Code `json:"last_error"`
}

// handleBrokerDisconnect forces the broker session down. Idempotent.
func (s *Server) handleBrokerDisconnect(w http.ResponseWriter, r *http.Request) {
	closed, err := s.admin.ForceDisconnect(r.Context())
	if err != nil {
		s.writeAdminError(w, err)
		return
	}

	resp, ok := s.brokerState(w, r)
	if !ok {
		return
	}
	resp.Closed = &closed
	writeJSON(w, http.StatusOK, resp)
}

// handleBrokerConnect clears a forced disconnect and makes one attempt.
// The response reflects that attempt: 200 when connected, 502 with the
// diagnostic codes when the broker could not be reached or refused.
func (s *Server) handleBrokerConnect(w http.ResponseWriter, r *http.Request) {
	connected, err := s.admin.ForceReconnect(r.Context())
	if err != nil {
		s.writeAdminError(w, err)
		return
	}

	resp, ok := s.brokerState(w, r)
	if !ok {
		return
	}
	resp.Connected = connected

	code := http.StatusOK
	if !connected {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp)
}

// brokerState reads the session part of the status snapshot.
func (s *Server) brokerState(w http.ResponseWriter, r *http.Request) (brokerResponse, bool) {
	st, err := s.admin.Status(r.Context())
	if err != nil {
		s.writeAdminError(w, err)
		return brokerResponse{}, false
	}
	if st.Session == nil {
		s.writeAdminError(w, node.ErrNoSession)
		return brokerResponse{}, false
	}

	return brokerResponse{
		Connected:  st.Session.Connected,
		State:      st.Session.State,
		ReturnCode: st.Session.ReturnCode,
		LastError:  st.Session.LastError,
	}, true
}
