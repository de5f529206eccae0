// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Prediction constants
const (
	// DefaultBill is returned whenever there is nothing to predict from
	DefaultBill = 100.0

	// SimpleLastWeight is the weight of the most recent purchase in the simple model
	SimpleLastWeight = 0.7

	// SimpleAvgWeight is the weight of the customer's average in the simple model
	SimpleAvgWeight = 0.3

	// KnownJitter is the relative noise applied to predictions with history
	KnownJitter = 0.05

	// UnknownJitter is the relative noise applied when only the global average is known
	UnknownJitter = 0.1
)

// Face matching constants
const (
	// GalleryCandidates is the number of HNSW candidates re-scored exactly
	GalleryCandidates = 16
)

// Processing constants
const (
	// EnrollWorkers is the default number of face-data folders enrolled in parallel
	EnrollWorkers = 4

	// MaxImageSize is the maximum dimension (width or height) of copied images
	MaxImageSize = 1280

	// NotifyFailureLimit is the number of consecutive notify failures before pausing
	NotifyFailureLimit = 5

	// NotifyTimeout bounds a single detection notification
	NotifyTimeout = 1 * time.Second

	// NotifyResetInterval is how often a paused notifier retries
	NotifyResetInterval = 30 * time.Second
)

// Synthetic data constants
const (
	// SyntheticPurchases is the number of purchases generated per customer
	SyntheticPurchases = 10

	// SyntheticHistoryDays is how far back the first synthetic purchase lies
	SyntheticHistoryDays = 365
)
