package handlers

import (
	"net/http"

	"github.com/kozaktomas/customer-recognition/internal/config"
	"github.com/kozaktomas/customer-recognition/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	RecognitionThreshold float64 `json:"recognition_threshold"`
	CooldownSeconds      float64 `json:"cooldown_seconds"`
	DetectionWorkers     int     `json:"detection_workers"`
	QueueSize            int     `json:"queue_size"`
	RecentLimit          int     `json:"recent_limit"`
	DatabaseReady        bool    `json:"database_ready"`
}

// Get returns the runtime settings the dashboard needs
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		RecognitionThreshold: h.config.Recognition.Threshold,
		CooldownSeconds:      h.config.Recognition.Cooldown.Seconds(),
		DetectionWorkers:     h.config.Detection.Workers,
		QueueSize:            h.config.Detection.QueueSize,
		RecentLimit:          h.config.Detection.RecentLimit,
		DatabaseReady:        database.IsInitialized(),
	})
}
