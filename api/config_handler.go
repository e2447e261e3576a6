package api

import (
	"net/http"

	"github.com/seenimoa/optionyield/internal/config"
)

// ConfigResponse is returned by GET /api/v1/config.
type ConfigResponse struct {
	Settings []config.Setting `json:"settings"`
	API      config.APIConfig `json:"api"`
}

// handleGetConfig returns the effective settings and where each came from.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "no configuration loaded")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ConfigResponse{
			Settings: config.Describe(s.cfg),
			API:      s.cfg.API,
		},
	})
}
