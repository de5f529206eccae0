package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/lib/pq"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
)

// pqForeignKeyViolation is the SQLSTATE raised when a child row references a missing customer.
const pqForeignKeyViolation = "23503"

// CustomerRepository provides PostgreSQL-backed customer storage.
type CustomerRepository struct {
	pool *Pool
}

// NewCustomerRepository creates a new PostgreSQL customer repository.
func NewCustomerRepository(pool *Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

var _ database.CustomerStore = (*CustomerRepository)(nil)

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

// nullableVector returns a query argument that stores NULL for empty embeddings.
func nullableVector(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// Find retrieves a customer with embeddings, purchases and images. Returns nil if not found.
func (r *CustomerRepository) Find(ctx context.Context, customerID string) (*database.Customer, error) {
	var (
		c         database.Customer
		vectorTxt string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT customer_id, COALESCE(face_embedding::text, ''), visit_count,
		       registration_date, last_seen_date, avg_bill
		FROM customers
		WHERE customer_id = $1
	`, customerID).Scan(&c.CustomerID, &vectorTxt, &c.VisitCount, &c.RegistrationDate, &c.LastSeenDate, &c.AvgBill)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "query customer", goerr.V("customer_id", customerID))
	}

	if vectorTxt != "" {
		var vec pgvector.Vector
		if err := vec.Scan(vectorTxt); err != nil {
			return nil, goerr.Wrap(err, "parse face embedding", goerr.V("customer_id", customerID))
		}
		c.FaceEmbedding = vec.Slice()
	}

	if c.AllEmbeddings, err = r.embeddings(ctx, customerID); err != nil {
		return nil, err
	}
	if c.Purchases, err = r.purchases(ctx, customerID); err != nil {
		return nil, err
	}
	if c.FaceImages, err = r.faceImages(ctx, customerID); err != nil {
		return nil, err
	}

	return &c, nil
}

func (r *CustomerRepository) embeddings(ctx context.Context, customerID string) ([][]float32, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT embedding FROM customer_embeddings WHERE customer_id = $1 ORDER BY id", customerID)
	if err != nil {
		return nil, goerr.Wrap(err, "query embeddings", goerr.V("customer_id", customerID))
	}
	defer rows.Close()

	var out [][]float32
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, goerr.Wrap(err, "scan embedding")
		}
		out = append(out, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate embeddings")
	}
	return out, nil
}

func (r *CustomerRepository) purchases(ctx context.Context, customerID string) ([]database.Purchase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT purchased_at, amount, items_count
		FROM purchases
		WHERE customer_id = $1
		ORDER BY purchased_at, id
	`, customerID)
	if err != nil {
		return nil, goerr.Wrap(err, "query purchases", goerr.V("customer_id", customerID))
	}
	defer rows.Close()

	var out []database.Purchase
	for rows.Next() {
		var p database.Purchase
		if err := rows.Scan(&p.Date, &p.Amount, &p.ItemsCount); err != nil {
			return nil, goerr.Wrap(err, "scan purchase")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate purchases")
	}
	return out, nil
}

func (r *CustomerRepository) faceImages(ctx context.Context, customerID string) ([]database.FaceImage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT image_id::text, capture_date, image_path
		FROM face_images
		WHERE customer_id = $1
		ORDER BY capture_date, image_id
	`, customerID)
	if err != nil {
		return nil, goerr.Wrap(err, "query face images", goerr.V("customer_id", customerID))
	}
	defer rows.Close()

	var out []database.FaceImage
	for rows.Next() {
		var img database.FaceImage
		if err := rows.Scan(&img.ImageID, &img.CaptureDate, &img.ImagePath); err != nil {
			return nil, goerr.Wrap(err, "scan face image")
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate face images")
	}
	return out, nil
}

// Count returns the number of customers.
func (r *CustomerRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM customers").Scan(&count); err != nil {
		return 0, goerr.Wrap(err, "count customers")
	}
	return count, nil
}

// ListCustomerIDs returns all customer ids ordered by registration.
func (r *CustomerRepository) ListCustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, "SELECT customer_id FROM customers ORDER BY registration_date, customer_id")
	if err != nil {
		return nil, goerr.Wrap(err, "query customer ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, goerr.Wrap(err, "scan customer id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate customer ids")
	}
	return ids, nil
}

// ListEmbeddings returns representative embeddings in registration order.
func (r *CustomerRepository) ListEmbeddings(ctx context.Context) ([]database.KnownEmbedding, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT customer_id, face_embedding
		FROM customers
		WHERE face_embedding IS NOT NULL
		ORDER BY registration_date, customer_id
	`)
	if err != nil {
		return nil, goerr.Wrap(err, "query embeddings")
	}
	defer rows.Close()

	var out []database.KnownEmbedding
	for rows.Next() {
		var (
			k   database.KnownEmbedding
			vec pgvector.Vector
		)
		if err := rows.Scan(&k.CustomerID, &vec); err != nil {
			return nil, goerr.Wrap(err, "scan embedding")
		}
		k.Embedding = vec.Slice()
		out = append(out, k)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate embeddings")
	}
	return out, nil
}

// PurchaseHistories returns every customer's purchases ordered by date.
func (r *CustomerRepository) PurchaseHistories(ctx context.Context) (map[string][]database.Purchase, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT customer_id, purchased_at, amount, items_count
		FROM purchases
		ORDER BY customer_id, purchased_at, id
	`)
	if err != nil {
		return nil, goerr.Wrap(err, "query purchase histories")
	}
	defer rows.Close()

	histories := make(map[string][]database.Purchase)
	for rows.Next() {
		var (
			id string
			p  database.Purchase
		)
		if err := rows.Scan(&id, &p.Date, &p.Amount, &p.ItemsCount); err != nil {
			return nil, goerr.Wrap(err, "scan purchase")
		}
		histories[id] = append(histories[id], p)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate purchase histories")
	}
	return histories, nil
}

// LatestPurchaseDates returns the date of the newest purchase per customer.
func (r *CustomerRepository) LatestPurchaseDates(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, "SELECT customer_id, MAX(purchased_at) FROM purchases GROUP BY customer_id")
	if err != nil {
		return nil, goerr.Wrap(err, "query latest purchases")
	}
	defer rows.Close()

	latest := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, goerr.Wrap(err, "scan latest purchase")
		}
		latest[id] = at
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate latest purchases")
	}
	return latest, nil
}

// Upsert creates the customer or merges it into the existing row.
func (r *CustomerRepository) Upsert(ctx context.Context, c *database.Customer) (bool, error) {
	if c == nil || c.CustomerID == "" {
		return false, goerr.New("customer id is required")
	}

	now := time.Now()
	registered := c.RegistrationDate
	if registered.IsZero() {
		registered = now
	}
	lastSeen := c.LastSeenDate
	if lastSeen.IsZero() {
		lastSeen = registered
	}
	face := c.FaceEmbedding
	if len(face) == 0 {
		face = database.MeanEmbedding(c.AllEmbeddings)
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	var created bool
	err = tx.QueryRowContext(ctx, `
		INSERT INTO customers (customer_id, face_embedding, visit_count, registration_date, last_seen_date, avg_bill)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (customer_id) DO UPDATE SET
			face_embedding = COALESCE(customers.face_embedding, EXCLUDED.face_embedding),
			visit_count = GREATEST(customers.visit_count, EXCLUDED.visit_count),
			last_seen_date = GREATEST(customers.last_seen_date, EXCLUDED.last_seen_date)
		RETURNING (xmax = 0)
	`, c.CustomerID, nullableVector(face), c.VisitCount, registered, lastSeen, database.AverageBill(c.Purchases)).Scan(&created)
	if err != nil {
		return false, goerr.Wrap(err, "upsert customer", goerr.V("customer_id", c.CustomerID))
	}

	if created {
		for _, emb := range c.AllEmbeddings {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO customer_embeddings (customer_id, embedding) VALUES ($1, $2)",
				c.CustomerID, pgvector.NewVector(emb),
			); err != nil {
				return false, goerr.Wrap(err, "insert embedding", goerr.V("customer_id", c.CustomerID))
			}
		}
		for _, p := range c.Purchases {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO purchases (customer_id, purchased_at, amount, items_count) VALUES ($1, $2, $3, $4)",
				c.CustomerID, p.Date, p.Amount, p.ItemsCount,
			); err != nil {
				return false, goerr.Wrap(err, "insert purchase", goerr.V("customer_id", c.CustomerID))
			}
		}
	}

	for _, img := range c.FaceImages {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_images (image_id, customer_id, capture_date, image_path)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (image_id) DO NOTHING
		`, img.ImageID, c.CustomerID, img.CaptureDate, img.ImagePath); err != nil {
			return false, goerr.Wrap(err, "insert face image", goerr.V("customer_id", c.CustomerID))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, goerr.Wrap(err, "commit customer upsert", goerr.V("customer_id", c.CustomerID))
	}
	return created, nil
}

// IncrementVisit adds one visit and moves last seen forward.
func (r *CustomerRepository) IncrementVisit(ctx context.Context, customerID string, seenAt time.Time) (int, error) {
	var visits int
	err := r.pool.QueryRow(ctx, `
		UPDATE customers
		SET visit_count = visit_count + 1,
		    last_seen_date = GREATEST(last_seen_date, $2)
		WHERE customer_id = $1
		RETURNING visit_count
	`, customerID, seenAt).Scan(&visits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, goerr.Wrap(database.ErrCustomerNotFound, "increment visit", goerr.V("customer_id", customerID))
	}
	if err != nil {
		return 0, goerr.Wrap(err, "increment visit", goerr.V("customer_id", customerID))
	}
	return visits, nil
}

// RecordPurchase appends a purchase and refreshes the customer's aggregates.
func (r *CustomerRepository) RecordPurchase(ctx context.Context, customerID string, p database.Purchase) (*database.Customer, error) {
	if p.Date.IsZero() {
		p.Date = time.Now()
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO customers (customer_id, visit_count, registration_date, last_seen_date)
		VALUES ($1, 1, $2, $2)
		ON CONFLICT (customer_id) DO NOTHING
	`, customerID, p.Date); err != nil {
		return nil, goerr.Wrap(err, "create customer", goerr.V("customer_id", customerID))
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO purchases (customer_id, purchased_at, amount, items_count) VALUES ($1, $2, $3, $4)",
		customerID, p.Date, p.Amount, p.ItemsCount,
	); err != nil {
		return nil, goerr.Wrap(err, "insert purchase", goerr.V("customer_id", customerID))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE customers c
		SET avg_bill = s.avg_bill,
		    visit_count = GREATEST(c.visit_count, s.purchases)
		FROM (
			SELECT AVG(amount) AS avg_bill, COUNT(*) AS purchases
			FROM purchases
			WHERE customer_id = $1
		) s
		WHERE c.customer_id = $1
	`, customerID); err != nil {
		return nil, goerr.Wrap(err, "update customer aggregates", goerr.V("customer_id", customerID))
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "commit purchase", goerr.V("customer_id", customerID))
	}

	// the purchase is stored; a failed read-back must not report the write as failed
	c, err := r.Find(ctx, customerID)
	if err != nil {
		logging.From(ctx).Warn("purchase stored but customer read-back failed",
			"customer_id", customerID, logging.ErrAttr(err))
		return nil, nil
	}
	return c, nil
}

// AddFaceImage appends a captured image reference.
func (r *CustomerRepository) AddFaceImage(ctx context.Context, customerID string, img database.FaceImage) error {
	_, err := r.pool.db.ExecContext(ctx, `
		INSERT INTO face_images (image_id, customer_id, capture_date, image_path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (image_id) DO NOTHING
	`, img.ImageID, customerID, img.CaptureDate, img.ImagePath)
	if err != nil {
		if isForeignKeyViolation(err) {
			return goerr.Wrap(database.ErrCustomerNotFound, "add face image", goerr.V("customer_id", customerID))
		}
		return goerr.Wrap(err, "insert face image", goerr.V("customer_id", customerID))
	}
	return nil
}
