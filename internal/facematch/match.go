package facematch

import (
	"github.com/kozaktomas/customer-recognition/internal/database"
)

// Match returns the known embedding closest to query by euclidean distance.
// The first occurrence wins exact ties. A result is matched only when the
// distance is strictly below threshold. Vectors whose length differs from
// query are never matched.
func Match(query []float32, known [][]float32, ids []string, threshold float64) MatchResult {
	n := min(len(known), len(ids))
	best := noMatch()
	bestIdx := -1

	for i := range n {
		d := database.EuclideanDistance(query, known[i])
		if d < best.Distance {
			best.Distance = d
			bestIdx = i
		}
	}

	if bestIdx >= 0 && best.Distance < threshold {
		best.CustomerID = ids[bestIdx]
		best.Matched = true
	}
	return best
}
