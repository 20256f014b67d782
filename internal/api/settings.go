package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/iotlink/internal/settings"
)

// settingsResponse never carries the broker password.
type settingsResponse struct {
	BrokerHost        string `json:"broker_host"`
	BrokerUsername    string `json:"broker_username"`
	BrokerPasswordSet bool   `json:"broker_password_set"`
	StaticAddress     string `json:"static_address"`
	StaticGateway     string `json:"static_gateway"`
	StaticMask        string `json:"static_mask"`
	StaticDNS         string `json:"static_dns"`
}

// settingsRequest is a partial update: absent fields keep their value,
// empty strings clear it.
type settingsRequest struct {
	BrokerHost     *string `json:"broker_host"`
	BrokerUsername *string `json:"broker_username"`
	BrokerPassword *string `json:"broker_password"`
	StaticAddress  *string `json:"static_address"`
	StaticGateway  *string `json:"static_gateway"`
	StaticMask     *string `json:"static_mask"`
	StaticDNS      *string `json:"static_dns"`
}

func (req settingsRequest) apply(o *settings.Overrides) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&o.BrokerHost, req.BrokerHost)
	set(&o.BrokerUsername, req.BrokerUsername)
	set(&o.BrokerPassword, req.BrokerPassword)
	set(&o.StaticAddress, req.StaticAddress)
	set(&o.StaticGateway, req.StaticGateway)
	set(&o.StaticMask, req.StaticMask)
	set(&o.StaticDNS, req.StaticDNS)
}

func toSettingsResponse(o settings.Overrides) settingsResponse {
	return settingsResponse{
		BrokerHost:        o.BrokerHost,
		BrokerUsername:    o.BrokerUsername,
		BrokerPasswordSet: o.BrokerPassword != "",
		StaticAddress:     o.StaticAddress,
		StaticGateway:     o.StaticGateway,
		StaticMask:        o.StaticMask,
		StaticDNS:         o.StaticDNS,
	}
}

// handleGetSettings returns the persisted overrides.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeUnavailable(w, "settings store not configured")
		return
	}

	o, err := s.settings.Load(r.Context())
	if err != nil {
		s.logger.Error("failed to load settings", "error", err)
		writeInternalError(w, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(o))
}

// handlePutSettings applies a partial update. Overrides take effect on the
// next restart; the running session keeps its identity.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeUnavailable(w, "settings store not configured")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	o, err := s.settings.Load(r.Context())
	if err != nil {
		s.logger.Error("failed to load settings", "error", err)
		writeInternalError(w, "failed to load settings")
		return
	}
	req.apply(&o)

	if err := s.settings.Save(r.Context(), o); err != nil {
		if errors.Is(err, settings.ErrValueTooLong) || errors.Is(err, settings.ErrInvalidStaticAddress) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("failed to save settings", "error", err)
		writeInternalError(w, "failed to save settings")
		return
	}

	s.logger.Info("settings updated", "request_id", r.Context().Value(ctxKeyRequestID))
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":         toSettingsResponse(o),
		"restart_required": true,
	})
}
