package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestConfigHandler_Get(t *testing.T) {
	cfg := config.Defaults()
	cfg.Recognition.Cooldown = 90 * time.Second
	handler := NewConfigHandler(cfg)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var resp ConfigResponse
	parseJSONResponse(t, recorder, &resp)
	assert.Equal(t, 0.6, resp.RecognitionThreshold)
	assert.Equal(t, 90.0, resp.CooldownSeconds)
	assert.Equal(t, 4, resp.DetectionWorkers)
	assert.Equal(t, 256, resp.QueueSize)
	assert.Equal(t, 10, resp.RecentLimit)
}
