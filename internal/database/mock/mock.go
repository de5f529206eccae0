// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/m-mizutani/goerr/v2"
)

// MockCustomerStore is an in-memory implementation of database.CustomerStore
type MockCustomerStore struct {
	mu        sync.RWMutex
	customers map[string]*database.Customer
	order     []string // registration order

	// Error injection
	FindError           error
	UpsertError         error
	IncrementVisitError error
	RecordPurchaseError error
	ReadBackFails       bool // RecordPurchase stores the purchase but returns no customer
	AddFaceImageError   error
	ListError           error
}

var _ database.CustomerStore = (*MockCustomerStore)(nil)

// NewMockCustomerStore creates a new empty mock store
func NewMockCustomerStore() *MockCustomerStore {
	return &MockCustomerStore{
		customers: make(map[string]*database.Customer),
	}
}

func cloneCustomer(c *database.Customer) *database.Customer {
	out := *c
	out.FaceEmbedding = append([]float32(nil), c.FaceEmbedding...)
	out.AllEmbeddings = make([][]float32, len(c.AllEmbeddings))
	for i, e := range c.AllEmbeddings {
		out.AllEmbeddings[i] = append([]float32(nil), e...)
	}
	out.Purchases = append([]database.Purchase(nil), c.Purchases...)
	out.FaceImages = append([]database.FaceImage(nil), c.FaceImages...)
	return &out
}

// AddCustomer puts a customer into the store as is
func (m *MockCustomerStore) AddCustomer(c database.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.CustomerID]; !ok {
		m.order = append(m.order, c.CustomerID)
	}
	m.customers[c.CustomerID] = cloneCustomer(&c)
}

// Find retrieves a copy of the customer, nil if absent
func (m *MockCustomerStore) Find(ctx context.Context, customerID string) (*database.Customer, error) {
	if m.FindError != nil {
		return nil, m.FindError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[customerID]
	if !ok {
		return nil, nil
	}
	return cloneCustomer(c), nil
}

// Count returns the number of customers
func (m *MockCustomerStore) Count(ctx context.Context) (int, error) {
	if m.ListError != nil {
		return 0, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.customers), nil
}

// ListCustomerIDs returns ids in registration order
func (m *MockCustomerStore) ListCustomerIDs(ctx context.Context) ([]string, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// ListEmbeddings returns representative embeddings in registration order
func (m *MockCustomerStore) ListEmbeddings(ctx context.Context) ([]database.KnownEmbedding, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.KnownEmbedding
	for _, id := range m.order {
		c := m.customers[id]
		if len(c.FaceEmbedding) == 0 {
			continue
		}
		out = append(out, database.KnownEmbedding{
			CustomerID: id,
			Embedding:  append([]float32(nil), c.FaceEmbedding...),
		})
	}
	return out, nil
}

// PurchaseHistories returns every customer's purchases
func (m *MockCustomerStore) PurchaseHistories(ctx context.Context) (map[string][]database.Purchase, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]database.Purchase)
	for id, c := range m.customers {
		if len(c.Purchases) > 0 {
			out[id] = append([]database.Purchase(nil), c.Purchases...)
		}
	}
	return out, nil
}

// LatestPurchaseDates returns the newest purchase date per customer
func (m *MockCustomerStore) LatestPurchaseDates(ctx context.Context) (map[string]time.Time, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]time.Time)
	for id, c := range m.customers {
		for _, p := range c.Purchases {
			if p.Date.After(out[id]) {
				out[id] = p.Date
			}
		}
	}
	return out, nil
}

// Upsert creates or merges a customer
func (m *MockCustomerStore) Upsert(ctx context.Context, c *database.Customer) (bool, error) {
	if m.UpsertError != nil {
		return false, m.UpsertError
	}
	if c == nil || c.CustomerID == "" {
		return false, goerr.New("customer id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.customers[c.CustomerID]
	if !ok {
		created := cloneCustomer(c)
		if len(created.FaceEmbedding) == 0 {
			created.FaceEmbedding = database.MeanEmbedding(created.AllEmbeddings)
		}
		if created.RegistrationDate.IsZero() {
			created.RegistrationDate = time.Now()
		}
		if created.LastSeenDate.IsZero() {
			created.LastSeenDate = created.RegistrationDate
		}
		created.AvgBill = database.AverageBill(created.Purchases)
		m.customers[c.CustomerID] = created
		m.order = append(m.order, c.CustomerID)
		return true, nil
	}

	if len(existing.FaceEmbedding) == 0 && len(c.FaceEmbedding) > 0 {
		existing.FaceEmbedding = append([]float32(nil), c.FaceEmbedding...)
	}
	existing.VisitCount = max(existing.VisitCount, c.VisitCount)
	if c.LastSeenDate.After(existing.LastSeenDate) {
		existing.LastSeenDate = c.LastSeenDate
	}
	existing.FaceImages = append(existing.FaceImages, c.FaceImages...)
	return false, nil
}

// IncrementVisit adds one visit
func (m *MockCustomerStore) IncrementVisit(ctx context.Context, customerID string, seenAt time.Time) (int, error) {
	if m.IncrementVisitError != nil {
		return 0, m.IncrementVisitError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok {
		return 0, goerr.Wrap(database.ErrCustomerNotFound, "increment visit", goerr.V("customer_id", customerID))
	}
	c.VisitCount++
	if seenAt.After(c.LastSeenDate) {
		c.LastSeenDate = seenAt
	}
	return c.VisitCount, nil
}

// RecordPurchase appends a purchase, creating the customer when missing
func (m *MockCustomerStore) RecordPurchase(ctx context.Context, customerID string, p database.Purchase) (*database.Customer, error) {
	if m.RecordPurchaseError != nil {
		return nil, m.RecordPurchaseError
	}
	if p.Date.IsZero() {
		p.Date = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[customerID]
	if !ok {
		c = &database.Customer{
			CustomerID:       customerID,
			VisitCount:       1,
			RegistrationDate: p.Date,
			LastSeenDate:     p.Date,
		}
		m.customers[customerID] = c
		m.order = append(m.order, customerID)
	}
	c.Purchases = append(c.Purchases, p)
	sort.SliceStable(c.Purchases, func(i, j int) bool { return c.Purchases[i].Date.Before(c.Purchases[j].Date) })
	c.AvgBill = database.AverageBill(c.Purchases)
	c.VisitCount = max(c.VisitCount, len(c.Purchases))
	if m.ReadBackFails {
		return nil, nil
	}
	return cloneCustomer(c), nil
}

// AddFaceImage appends an image reference
func (m *MockCustomerStore) AddFaceImage(ctx context.Context, customerID string, img database.FaceImage) error {
	if m.AddFaceImageError != nil {
		return m.AddFaceImageError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok {
		return goerr.Wrap(database.ErrCustomerNotFound, "add face image", goerr.V("customer_id", customerID))
	}
	c.FaceImages = append(c.FaceImages, img)
	return nil
}
