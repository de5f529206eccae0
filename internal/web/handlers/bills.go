package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/logging"
)

// BillUpdater records finalized bills and retrains the prediction model.
type BillUpdater interface {
	UpdateWithPurchase(ctx context.Context, customerID string, p database.Purchase) (bool, error)
}

// BillsHandler handles bill finalization from the point of sale.
type BillsHandler struct {
	engine    BillUpdater
	cache     *detection.Cache
	onUpdated func() // optional, runs after a bill is recorded
}

// NewBillsHandler creates a new bills handler. onUpdated may be nil.
func NewBillsHandler(engine BillUpdater, cache *detection.Cache, onUpdated func()) *BillsHandler {
	return &BillsHandler{
		engine:    engine,
		cache:     cache,
		onUpdated: onUpdated,
	}
}

type updateBillRequest struct {
	CustomerID string          `json:"customer_id"`
	ActualBill json.RawMessage `json:"actual_bill"`
	ItemsCount int             `json:"items_count"`
}

// UpdateBillResponse is returned when a bill was recorded.
type UpdateBillResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Removed bool   `json:"removed"`
}

var errInvalidBill = errors.New("invalid bill amount")

// parseBillAmount accepts a JSON number or a numeric string and rejects
// negative and non-finite amounts.
func parseBillAmount(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, errInvalidBill
	}

	var amount float64
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, errInvalidBill
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return 0, errInvalidBill
		}
		amount = v
	} else if err := json.Unmarshal(raw, &amount); err != nil {
		return 0, errInvalidBill
	}

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, errInvalidBill
	}
	return amount, nil
}

// UpdateBill records the customer's actual bill, retrains the model and takes
// the customer off the awaiting-bill list.
func (h *BillsHandler) UpdateBill(w http.ResponseWriter, r *http.Request) {
	var req updateBillRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "No data provided")
		return
	}

	amount, err := parseBillAmount(req.ActualBill)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid bill amount")
		return
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		respondError(w, http.StatusBadRequest, "Customer ID is required")
		return
	}
	if req.ItemsCount < 0 {
		respondError(w, http.StatusBadRequest, "Invalid items count")
		return
	}

	ok, err := h.engine.UpdateWithPurchase(r.Context(), customerID, database.Purchase{
		Amount:     amount,
		ItemsCount: req.ItemsCount,
	})
	if err != nil || !ok {
		logging.From(r.Context()).Error("failed to update bill",
			"customer_id", sanitizeForLog(customerID), "amount", amount, logging.ErrAttr(err))
		respondJSON(w, http.StatusInternalServerError, StatusResponse{
			Status:  "error",
			Message: "Failed to update bill amount",
		})
		return
	}

	removed := h.cache.Remove(customerID)
	if h.onUpdated != nil {
		h.onUpdated()
	}
	respondJSON(w, http.StatusOK, UpdateBillResponse{
		Status:  "success",
		Message: fmt.Sprintf("Bill for %s updated to $%.2f", customerID, amount),
		Removed: removed,
	})
}
