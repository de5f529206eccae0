package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/database/mock"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBillAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{`120`, 120, false},
		{`45.5`, 45.5, false},
		{`"87.25"`, 87.25, false},
		{`" 10 "`, 10, false},
		{`0`, 0, false},
		{`-1`, 0, true},
		{`"abc"`, 0, true},
		{`"NaN"`, 0, true},
		{`"Inf"`, 0, true},
		{`null`, 0, true},
		{``, 0, true},
		{`true`, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := parseBillAmount(json.RawMessage(tc.raw))
			if tc.wantErr {
				assert.ErrorIs(t, err, errInvalidBill)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBillsHandler_FirstPurchase(t *testing.T) {
	ctx := context.Background()
	store := mock.NewMockCustomerStore()
	engine := newTestEngine(t, store)
	cache := detection.NewCache()
	cache.Publish(detection.NewEvent("C1", t0, 100, "", 1))

	updated := 0
	h := NewBillsHandler(engine, cache, func() { updated++ })
	recorder := httptest.NewRecorder()
	h.UpdateBill(recorder, jsonRequest(http.MethodPost, "/api/update_bill", `{"customer_id":"C1","actual_bill":120,"items_count":3}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp UpdateBillResponse
	parseJSONResponse(t, recorder, &resp)
	assert.Equal(t, UpdateBillResponse{Status: "success", Message: "Bill for C1 updated to $120.00", Removed: true}, resp)
	assert.Equal(t, 1, updated)

	_, ok := cache.Get("C1")
	assert.False(t, ok)

	c, err := store.Find(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, c.VisitCount)
	assert.InDelta(t, 120.0, c.AvgBill, 1e-9)
	require.Len(t, c.Purchases, 1)
	assert.Equal(t, 3, c.Purchases[0].ItemsCount)

	assert.Equal(t, prediction.SimpleModel{AvgBill: 120}, engine.Model())
	assert.InDelta(t, 120.0, engine.Predict("C1"), 1e-9)
}

func TestBillsHandler_NotAwaitingBill(t *testing.T) {
	store := mock.NewMockCustomerStore()
	h := NewBillsHandler(newTestEngine(t, store), detection.NewCache(), nil)

	recorder := httptest.NewRecorder()
	h.UpdateBill(recorder, jsonRequest(http.MethodPost, "/api/update_bill", `{"customer_id":"C9","actual_bill":"35.5"}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp UpdateBillResponse
	parseJSONResponse(t, recorder, &resp)
	assert.False(t, resp.Removed)
	assert.Equal(t, "Bill for C9 updated to $35.50", resp.Message)
}

func TestBillsHandler_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"empty body", "", "No data provided"},
		{"malformed", `{"customer_id"`, "No data provided"},
		{"missing bill", `{"customer_id":"C1"}`, "Invalid bill amount"},
		{"negative bill", `{"customer_id":"C1","actual_bill":-5}`, "Invalid bill amount"},
		{"text bill", `{"customer_id":"C1","actual_bill":"lots"}`, "Invalid bill amount"},
		{"missing id", `{"actual_bill":10}`, "Customer ID is required"},
		{"negative items", `{"customer_id":"C1","actual_bill":10,"items_count":-1}`, "Invalid items count"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := mock.NewMockCustomerStore()
			h := NewBillsHandler(newTestEngine(t, store), detection.NewCache(), nil)
			recorder := httptest.NewRecorder()

			h.UpdateBill(recorder, jsonRequest(http.MethodPost, "/api/update_bill", tc.body))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.wantErr)
			count, err := store.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, count)
		})
	}
}

func TestBillsHandler_StoreFailure(t *testing.T) {
	store := mock.NewMockCustomerStore()
	engine := newTestEngine(t, store)
	store.RecordPurchaseError = errors.New("db down")
	cache := detection.NewCache()
	cache.Publish(detection.NewEvent("C1", t0, 100, "", 1))

	h := NewBillsHandler(engine, cache, nil)
	recorder := httptest.NewRecorder()
	h.UpdateBill(recorder, jsonRequest(http.MethodPost, "/api/update_bill", `{"customer_id":"C1","actual_bill":50}`))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	var resp StatusResponse
	parseJSONResponse(t, recorder, &resp)
	assert.Equal(t, StatusResponse{Status: "error", Message: "Failed to update bill amount"}, resp)

	_, ok := cache.Get("C1")
	assert.True(t, ok, "customer stays awaiting a bill")
	assert.Empty(t, engine.History("C1"))
}

func TestBillsHandler_ReadBackFailureStillSucceeds(t *testing.T) {
	store := mock.NewMockCustomerStore()
	engine := newTestEngine(t, store)
	store.ReadBackFails = true
	cache := detection.NewCache()
	cache.Publish(detection.NewEvent("C1", t0, 100, "", 1))

	h := NewBillsHandler(engine, cache, nil)
	recorder := httptest.NewRecorder()
	h.UpdateBill(recorder, jsonRequest(http.MethodPost, "/api/update_bill", `{"customer_id":"C1","actual_bill":80}`))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp UpdateBillResponse
	parseJSONResponse(t, recorder, &resp)
	assert.Equal(t, UpdateBillResponse{Status: "success", Message: "Bill for C1 updated to $80.00", Removed: true}, resp)

	_, ok := cache.Get("C1")
	assert.False(t, ok)
	require.Len(t, engine.History("C1"), 1)
	assert.InDelta(t, 80.0, engine.History("C1")[0].Amount, 1e-9)
}

type failingUpdater struct{}

func (failingUpdater) UpdateWithPurchase(context.Context, string, database.Purchase) (bool, error) {
	return false, nil
}

func TestBillsHandler_UnsuccessfulUpdate(t *testing.T) {
	h := NewBillsHandler(failingUpdater{}, detection.NewCache(), nil)
	recorder := httptest.NewRecorder()
	h.UpdateBill(recorder, jsonRequest(http.MethodPost, "/api/update_bill", `{"customer_id":"C1","actual_bill":50}`))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}
