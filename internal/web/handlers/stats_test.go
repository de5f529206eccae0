package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsHandler_Get(t *testing.T) {
	store := seededStore()
	store.AddCustomer(database.Customer{CustomerID: "C2"})
	cache := detection.NewCache()
	cache.Publish(detection.NewEvent("C2", t0, 100, "", 1))
	handler := NewStatsHandler(store, newTestEngine(t, store), cache)

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var stats StatsResponse
	parseJSONResponse(t, recorder, &stats)
	assert.Equal(t, 2, stats.TotalCustomers)
	assert.Equal(t, 1, stats.CustomersWithPurchases)
	assert.Equal(t, 1, stats.AwaitingBill)
	assert.Equal(t, "simple", stats.ModelType)
	require.NotNil(t, stats.ModelTrainedAt)
	assert.True(t, stats.ModelTrainedAt.Equal(t0))
}

func TestStatsHandler_Caching(t *testing.T) {
	store := seededStore()
	handler := NewStatsHandler(store, newTestEngine(t, store), detection.NewCache())

	first := httptest.NewRecorder()
	handler.Get(first, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	_, err := store.Upsert(context.Background(), &database.Customer{CustomerID: "C2"})
	require.NoError(t, err)

	second := httptest.NewRecorder()
	handler.Get(second, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, first.Body.String(), second.Body.String())

	handler.InvalidateCache()
	third := httptest.NewRecorder()
	handler.Get(third, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var stats StatsResponse
	parseJSONResponse(t, third, &stats)
	assert.Equal(t, 2, stats.TotalCustomers)
}

func TestStatsHandler_StoreError(t *testing.T) {
	store := seededStore()
	handler := NewStatsHandler(store, newTestEngine(t, store), detection.NewCache())
	store.ListError = errors.New("db down")

	recorder := httptest.NewRecorder()
	handler.Get(recorder, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
}
