package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/logging"
)

// Detector admits detections into the processing pipeline.
type Detector interface {
	HandleDetection(ctx context.Context, customerID string) detection.Result
}

// DetectionsHandler handles detection intake and the dashboard detection feed.
type DetectionsHandler struct {
	detector    Detector
	cache       *detection.Cache
	recentLimit int
	now         func() time.Time
}

// NewDetectionsHandler creates a new detections handler
func NewDetectionsHandler(detector Detector, cache *detection.Cache, recentLimit int) *DetectionsHandler {
	if recentLimit <= 0 {
		recentLimit = constants.DefaultRecentLimit
	}
	return &DetectionsHandler{
		detector:    detector,
		cache:       cache,
		recentLimit: recentLimit,
		now:         time.Now,
	}
}

type detectionRequest struct {
	CustomerID string `json:"customer_id"`
}

// StatusResponse is the generic {status, message} reply.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// CustomerDetected accepts a recognized customer id and returns before any processing.
func (h *DetectionsHandler) CustomerDetected(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "No customer ID provided")
		return
	}

	res := h.detector.HandleDetection(r.Context(), customerID)
	logging.From(r.Context()).Debug("detection received",
		"customer_id", sanitizeForLog(customerID), "status", string(res.Status))

	var resp StatusResponse
	switch res.Status {
	case detection.StatusAccepted:
		resp = StatusResponse{Status: "success", Message: fmt.Sprintf("Processing detection for customer %s", customerID)}
	case detection.StatusSuppressed:
		resp = StatusResponse{Status: "cooldown", Message: fmt.Sprintf("Customer %s was detected recently", customerID)}
	case detection.StatusDropped:
		resp = StatusResponse{Status: "queued_full", Message: fmt.Sprintf("Detection queue is full, customer %s was not processed", customerID)}
	default:
		resp = StatusResponse{Status: string(res.Status), Message: customerID}
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// LatestCustomer returns the most recent detection.
func (h *DetectionsHandler) LatestCustomer(w http.ResponseWriter, r *http.Request) {
	latest, ok := h.cache.Latest()
	if !ok {
		respondJSON(w, http.StatusOK, StatusResponse{Status: "no_customers", Message: "No customers detected yet"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"customer": latest,
	})
}

// parseLimit reads the limit query parameter, falling back to def for missing
// or invalid values and capping at MaxRecentLimit.
func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, constants.MaxRecentLimit)
}

// RecentCustomers returns the most recent detections, newest first.
func (h *DetectionsHandler) RecentCustomers(w http.ResponseWriter, r *http.Request) {
	recent := h.cache.Recent(parseLimit(r, h.recentLimit))
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"customers": recent,
	})
}

// TestDetection publishes a synthetic detection straight into the cache.
func (h *DetectionsHandler) TestDetection(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		customerID = constants.TestDetectionCustomerID
	}

	h.cache.Publish(detection.NewEvent(customerID, h.now(), constants.TestDetectionBill, constants.TestImageURL, 1))
	respondJSON(w, http.StatusOK, StatusResponse{
		Status:  "success",
		Message: fmt.Sprintf("Test detection added for %s", customerID),
	})
}

// Events streams every published detection. The stream starts with a
// "recent" event carrying the current recent list.
func (h *DetectionsHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := h.cache.Subscribe()
	defer unsubscribe()

	flusher, ok := setupSSEConnection(w)
	if !ok {
		return
	}

	sendSSEEvent(w, flusher, "recent", h.cache.Recent(h.recentLimit))

	keepAlive := time.NewTicker(constants.SSEKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			sendSSEComment(w, flusher)
		case event, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, "detection", event)
		}
	}
}
