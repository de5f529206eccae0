// Package facematch matches query face embeddings against the embeddings of known customers.
package facematch

import "math"

// MatchResult is the outcome of comparing a query against known embeddings.
// Distance is the smallest distance seen (+Inf when nothing was comparable);
// CustomerID is set only when Matched.
type MatchResult struct {
	CustomerID string
	Distance   float64
	Matched    bool
}

func noMatch() MatchResult {
	return MatchResult{Distance: math.Inf(1)}
}
