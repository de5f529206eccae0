package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
)

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(constants.StatsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// ModelDescriber exposes the current prediction model.
type ModelDescriber interface {
	ModelInfo() (prediction.Artifact, bool)
	CustomerIDs() []string
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	store  database.CustomerReader
	engine ModelDescriber
	cache  *detection.Cache
	stats  statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(store database.CustomerReader, engine ModelDescriber, cache *detection.Cache) *StatsHandler {
	return &StatsHandler{
		store:  store,
		engine: engine,
		cache:  cache,
	}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.stats.invalidate()
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	TotalCustomers         int        `json:"total_customers"`
	CustomersWithPurchases int        `json:"customers_with_purchases"`
	AwaitingBill           int        `json:"awaiting_bill"`
	StreamSubscribers      int        `json:"stream_subscribers"`
	DroppedStreamEvents    uint64     `json:"dropped_stream_events"`
	ModelType              string     `json:"model_type,omitempty"`
	ModelSamples           int        `json:"model_samples"`
	ModelTrainedAt         *time.Time `json:"model_trained_at,omitempty"`
}

// Get returns statistics about customers, detections and the model
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.stats.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	total, err := h.store.Count(r.Context())
	if err != nil {
		logging.From(r.Context()).Error("failed to count customers", logging.ErrAttr(err))
		respondError(w, http.StatusInternalServerError, "failed to count customers")
		return
	}

	stats := &StatsResponse{
		TotalCustomers:         total,
		CustomersWithPurchases: len(h.engine.CustomerIDs()),
		AwaitingBill:           h.cache.Len(),
		StreamSubscribers:      h.cache.Subscribers(),
		DroppedStreamEvents:    h.cache.Dropped(),
	}
	if info, ok := h.engine.ModelInfo(); ok {
		stats.ModelType = info.Type
		stats.ModelSamples = info.Samples
		if !info.TrainedAt.IsZero() {
			trainedAt := info.TrainedAt
			stats.ModelTrainedAt = &trainedAt
		}
	}

	h.stats.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
