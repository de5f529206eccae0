package database

import (
	"time"
)

// Customer is the persisted record of a recognized customer.
type Customer struct {
	CustomerID       string
	FaceEmbedding    []float32   // element-wise mean of AllEmbeddings
	AllEmbeddings    [][]float32 // append-only
	VisitCount       int
	RegistrationDate time.Time
	LastSeenDate     time.Time
	Purchases        []Purchase // ordered by Date
	AvgBill          float64    // 0 when there are no purchases
	FaceImages       []FaceImage
}

// Purchase is a single finalized bill.
type Purchase struct {
	Date       time.Time
	Amount     float64
	ItemsCount int
}

// FaceImage references a captured image of a customer's face.
type FaceImage struct {
	ImageID     string
	CaptureDate time.Time
	ImagePath   string
}

// KnownEmbedding pairs a customer with its representative embedding.
type KnownEmbedding struct {
	CustomerID string
	Embedding  []float32
}

// MeanEmbedding returns the element-wise mean of vectors.
// Vectors whose length differs from the first one are ignored. Returns nil for no input.
func MeanEmbedding(vectors [][]float32) []float32 {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	n := 0
	for _, v := range vectors {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		n++
	}

	mean := make([]float32, dim)
	for i := range sum {
		mean[i] = float32(sum[i] / float64(n))
	}
	return mean
}

// AverageBill returns the mean purchase amount, 0 when there are no purchases.
func AverageBill(purchases []Purchase) float64 {
	if len(purchases) == 0 {
		return 0
	}
	var total float64
	for _, p := range purchases {
		total += p.Amount
	}
	return total / float64(len(purchases))
}
