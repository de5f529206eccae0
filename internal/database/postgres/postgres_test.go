//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/customer-recognition/internal/config"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func embedding(seed float32) []float32 {
	v := make([]float32, 128)
	for i := range v {
		v[i] = seed + float32(i)/128.0
	}
	return v
}

func TestCustomerRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewCustomerRepository(pool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("MigrationsIdempotent", func(t *testing.T) {
		require.NoError(t, pool.Migrate(ctx))
		applied, err := pool.MigrationsApplied(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"001_init.sql"}, applied)
	})

	t.Run("FindMissing", func(t *testing.T) {
		c, err := repo.Find(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("UpsertCreatesThenMerges", func(t *testing.T) {
		created, err := repo.Upsert(ctx, &database.Customer{
			CustomerID:       "C100001",
			AllEmbeddings:    [][]float32{embedding(0), embedding(1)},
			RegistrationDate: now,
			FaceImages: []database.FaceImage{
				{ImageID: uuid.NewString(), CaptureDate: now, ImagePath: "face_data/C100001/a.jpg"},
			},
		})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.Upsert(ctx, &database.Customer{CustomerID: "C100001", VisitCount: 0})
		require.NoError(t, err)
		assert.False(t, created)

		c, err := repo.Find(ctx, "C100001")
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Len(t, c.AllEmbeddings, 2)
		assert.Len(t, c.FaceImages, 1)
		require.Len(t, c.FaceEmbedding, 128)
		assert.InDelta(t, 0.5, c.FaceEmbedding[0], 1e-6)
	})

	t.Run("IncrementVisit", func(t *testing.T) {
		visits, err := repo.IncrementVisit(ctx, "C100001", now.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, visits)

		_, err = repo.IncrementVisit(ctx, "nobody", now)
		assert.True(t, errors.Is(err, database.ErrCustomerNotFound))
	})

	t.Run("RecordPurchaseCreatesCustomer", func(t *testing.T) {
		c, err := repo.RecordPurchase(ctx, "C100002", database.Purchase{Date: now, Amount: 120, ItemsCount: 3})
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, 1, c.VisitCount)
		assert.InDelta(t, 120.0, c.AvgBill, 1e-9)
		require.Len(t, c.Purchases, 1)

		c, err = repo.RecordPurchase(ctx, "C100002", database.Purchase{Date: now.Add(time.Hour), Amount: 80})
		require.NoError(t, err)
		assert.Equal(t, 2, c.VisitCount)
		assert.InDelta(t, 100.0, c.AvgBill, 1e-9)
	})

	t.Run("AddFaceImageUnknownCustomer", func(t *testing.T) {
		err := repo.AddFaceImage(ctx, "nobody", database.FaceImage{ImageID: uuid.NewString(), CaptureDate: now, ImagePath: "x.jpg"})
		assert.True(t, errors.Is(err, database.ErrCustomerNotFound))
	})

	t.Run("Listings", func(t *testing.T) {
		ids, err := repo.ListCustomerIDs(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"C100001", "C100002"}, ids)

		known, err := repo.ListEmbeddings(ctx)
		require.NoError(t, err)
		require.Len(t, known, 1)
		assert.Equal(t, "C100001", known[0].CustomerID)

		histories, err := repo.PurchaseHistories(ctx)
		require.NoError(t, err)
		assert.Len(t, histories["C100002"], 2)

		latest, err := repo.LatestPurchaseDates(ctx)
		require.NoError(t, err)
		assert.True(t, latest["C100002"].Equal(now.Add(time.Hour)))

		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	// runs last: it breaks reads of face images
	t.Run("RecordPurchaseReadBackFailureKeepsPurchase", func(t *testing.T) {
		_, err := pool.db.ExecContext(ctx, "DROP TABLE face_images")
		require.NoError(t, err)

		c, err := repo.RecordPurchase(ctx, "C100002", database.Purchase{Date: now.Add(2 * time.Hour), Amount: 40})
		require.NoError(t, err)
		assert.Nil(t, c)

		histories, err := repo.PurchaseHistories(ctx)
		require.NoError(t, err)
		assert.Len(t, histories["C100002"], 3)
	})
}
