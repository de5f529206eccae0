package database

import (
	"context"
	"time"
)

// CustomerReader provides read-only access to customer records
type CustomerReader interface {
	// Find retrieves a customer with embeddings, purchases and images; returns nil if not found
	Find(ctx context.Context, customerID string) (*Customer, error)
	// Count returns the number of customers
	Count(ctx context.Context) (int, error)
	// ListCustomerIDs returns all customer ids ordered by registration
	ListCustomerIDs(ctx context.Context) ([]string, error)
	// ListEmbeddings returns the representative embedding of every customer that has one,
	// ordered by registration so earlier customers win distance ties
	ListEmbeddings(ctx context.Context) ([]KnownEmbedding, error)
	// PurchaseHistories returns every customer's purchases ordered by date
	PurchaseHistories(ctx context.Context) (map[string][]Purchase, error)
	// LatestPurchaseDates returns the date of the newest purchase per customer
	LatestPurchaseDates(ctx context.Context) (map[string]time.Time, error)
}

// CustomerWriter provides write access to customer records
type CustomerWriter interface {
	CustomerReader

	// Upsert creates the customer or merges it into the existing record.
	// Visit count and last seen never go backwards. Embeddings are stored only for new customers,
	// face images are appended. Returns true when the customer was created.
	Upsert(ctx context.Context, c *Customer) (bool, error)

	// IncrementVisit adds one visit and sets last seen. Returns the new visit count
	// or ErrCustomerNotFound.
	IncrementVisit(ctx context.Context, customerID string, seenAt time.Time) (int, error)

	// RecordPurchase appends a purchase, creating the customer when missing (visit count 1).
	// Recomputes the average bill and raises the visit count to the number of purchases.
	// The returned customer is nil when the purchase was stored but could not be read back.
	RecordPurchase(ctx context.Context, customerID string, p Purchase) (*Customer, error)

	// AddFaceImage appends a captured image reference
	AddFaceImage(ctx context.Context, customerID string, img FaceImage) error
}

// CustomerStore is the full store used by the pipeline.
type CustomerStore = CustomerWriter
