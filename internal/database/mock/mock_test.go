package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCustomerStore_RecordPurchaseCreates(t *testing.T) {
	ctx := context.Background()
	store := NewMockCustomerStore()

	c, err := store.RecordPurchase(ctx, "C1", database.Purchase{Amount: 120})
	require.NoError(t, err)
	assert.Equal(t, 1, c.VisitCount)
	assert.InDelta(t, 120.0, c.AvgBill, 1e-9)

	// returned record is a copy
	c.Purchases[0].Amount = 1
	again, err := store.Find(ctx, "C1")
	require.NoError(t, err)
	assert.InDelta(t, 120.0, again.Purchases[0].Amount, 1e-9)
}

func TestMockCustomerStore_VisitNeverDecreases(t *testing.T) {
	ctx := context.Background()
	store := NewMockCustomerStore()
	store.AddCustomer(database.Customer{CustomerID: "C1", VisitCount: 5})

	_, err := store.Upsert(ctx, &database.Customer{CustomerID: "C1", VisitCount: 1})
	require.NoError(t, err)

	visits, err := store.IncrementVisit(ctx, "C1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 6, visits)

	_, err = store.IncrementVisit(ctx, "missing", time.Now())
	assert.True(t, errors.Is(err, database.ErrCustomerNotFound))
}

func TestMockCustomerStore_ErrorInjection(t *testing.T) {
	store := NewMockCustomerStore()
	store.FindError = errors.New("boom")

	_, err := store.Find(context.Background(), "C1")
	assert.EqualError(t, err, "boom")
}
