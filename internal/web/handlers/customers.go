package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/logging"
)

// CustomerPredictor exposes predictions and purchase histories.
type CustomerPredictor interface {
	Predict(customerID string) float64
	History(customerID string) []database.Purchase
	CustomerIDs() []string
}

// ImagePublisher copies a captured image into the static directory and returns its URL.
type ImagePublisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// CustomersHandler handles customer detail, history and lookup endpoints.
type CustomersHandler struct {
	store  database.CustomerReader
	engine CustomerPredictor
	cache  *detection.Cache
	images ImagePublisher
}

// NewCustomersHandler creates a new customers handler. images may be nil.
func NewCustomersHandler(store database.CustomerReader, engine CustomerPredictor, cache *detection.Cache, images ImagePublisher) *CustomersHandler {
	return &CustomersHandler{
		store:  store,
		engine: engine,
		cache:  cache,
		images: images,
	}
}

// PurchaseResponse is a purchase as shown on the dashboard.
type PurchaseResponse struct {
	Date       time.Time `json:"date"`
	Amount     float64   `json:"amount"`
	ItemsCount int       `json:"items_count"`
}

// CustomerResponse is the detail view of a customer.
type CustomerResponse struct {
	CustomerID       string             `json:"customer_id"`
	VisitCount       int                `json:"visit_count"`
	RegistrationDate time.Time          `json:"registration_date"`
	LastSeenDate     time.Time          `json:"last_seen_date"`
	AvgBill          float64            `json:"avg_bill"`
	Purchases        []PurchaseResponse `json:"purchases"`
	FaceImageCount   int                `json:"face_image_count"`
	EmbeddingCount   int                `json:"embedding_count"`
	ImageURL         string             `json:"image_url,omitempty"`
	Detection        *detection.Event   `json:"detection,omitempty"`
	PredictedBill    float64            `json:"predicted_bill"`
}

func toPurchaseResponses(purchases []database.Purchase) []PurchaseResponse {
	out := make([]PurchaseResponse, len(purchases))
	for i, p := range purchases {
		out[i] = PurchaseResponse{Date: p.Date, Amount: p.Amount, ItemsCount: p.ItemsCount}
	}
	return out
}

// latestImageURL publishes the customer's most recent face image.
// Missing or failing images are not an error.
func (h *CustomersHandler) latestImageURL(ctx context.Context, c *database.Customer) string {
	if h.images == nil || c == nil || len(c.FaceImages) == 0 {
		return ""
	}
	path := c.FaceImages[len(c.FaceImages)-1].ImagePath
	if path == "" {
		return ""
	}
	url, err := h.images.Publish(ctx, path)
	if err != nil {
		logging.From(ctx).Warn("failed to publish face image", "customer_id", c.CustomerID, logging.ErrAttr(err))
		return ""
	}
	return url
}

// List returns the ids of customers with purchase history.
func (h *CustomersHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"customer_ids": h.engine.CustomerIDs(),
	})
}

// Get returns a customer's record, purchases, latest detection and prediction.
func (h *CustomersHandler) Get(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "missing customer ID")
		return
	}

	c, err := h.store.Find(r.Context(), customerID)
	if err != nil {
		logging.From(r.Context()).Error("failed to load customer", "customer_id", sanitizeForLog(customerID), logging.ErrAttr(err))
		respondError(w, http.StatusInternalServerError, "failed to load customer")
		return
	}
	if c == nil {
		respondError(w, http.StatusNotFound, "customer not found")
		return
	}

	resp := CustomerResponse{
		CustomerID:       c.CustomerID,
		VisitCount:       c.VisitCount,
		RegistrationDate: c.RegistrationDate,
		LastSeenDate:     c.LastSeenDate,
		AvgBill:          c.AvgBill,
		Purchases:        toPurchaseResponses(c.Purchases),
		FaceImageCount:   len(c.FaceImages),
		EmbeddingCount:   len(c.AllEmbeddings),
		ImageURL:         h.latestImageURL(r.Context(), c),
		PredictedBill:    h.engine.Predict(customerID),
	}
	if ev, ok := h.cache.Get(customerID); ok {
		resp.Detection = &ev
	}

	respondJSON(w, http.StatusOK, resp)
}

// ChartData holds the purchase history series.
type ChartData struct {
	Labels  []string  `json:"labels"`
	Amounts []float64 `json:"amounts"`
}

// HistoryStats summarizes a purchase history.
type HistoryStats struct {
	AvgBill        float64 `json:"avg_bill"`
	VisitCount     int     `json:"visit_count"`
	NextPrediction float64 `json:"next_prediction"`
}

// HistoryResponse is the purchase history of a customer.
type HistoryResponse struct {
	CustomerID string             `json:"customer_id"`
	Purchases  []PurchaseResponse `json:"purchases"`
	ChartData  ChartData          `json:"chart_data"`
	Stats      HistoryStats       `json:"stats"`
}

// History returns chart data and statistics of a customer's purchases.
func (h *CustomersHandler) History(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "missing customer ID")
		return
	}

	history := h.engine.History(customerID)
	chart := ChartData{
		Labels:  make([]string, len(history)),
		Amounts: make([]float64, len(history)),
	}
	for i, p := range history {
		chart.Labels[i] = p.Date.Format(constants.DetectionTimeLayout)
		chart.Amounts[i] = p.Amount
	}

	visits := len(history)
	if c, err := h.store.Find(r.Context(), customerID); err != nil {
		logging.From(r.Context()).Warn("failed to load customer", "customer_id", sanitizeForLog(customerID), logging.ErrAttr(err))
	} else if c != nil {
		visits = c.VisitCount
	}

	respondJSON(w, http.StatusOK, HistoryResponse{
		CustomerID: customerID,
		Purchases:  toPurchaseResponses(history),
		ChartData:  chart,
		Stats: HistoryStats{
			AvgBill:        database.AverageBill(history),
			VisitCount:     visits,
			NextPrediction: h.engine.Predict(customerID),
		},
	})
}

// ManualLookupResponse is the result of looking a customer up by id.
type ManualLookupResponse struct {
	CustomerID    string   `json:"customer_id"`
	Found         bool     `json:"found"`
	PredictedBill float64  `json:"predicted_bill"`
	ActualBill    *float64 `json:"actual_bill"`
	VisitCount    int      `json:"visit_count"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// ManualLookup predicts the bill of a customer identified by hand at the counter.
func (h *CustomersHandler) ManualLookup(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "No customer ID provided")
		return
	}

	c, err := h.store.Find(r.Context(), customerID)
	if err != nil {
		logging.From(r.Context()).Error("failed to load customer", "customer_id", sanitizeForLog(customerID), logging.ErrAttr(err))
		respondError(w, http.StatusInternalServerError, "failed to load customer")
		return
	}

	resp := ManualLookupResponse{
		CustomerID:    customerID,
		Found:         c != nil,
		PredictedBill: h.engine.Predict(customerID),
	}
	if c != nil {
		resp.VisitCount = c.VisitCount
		resp.ImageURL = h.latestImageURL(r.Context(), c)
	}
	respondJSON(w, http.StatusOK, resp)
}
