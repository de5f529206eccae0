package prediction

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticHistory(t *testing.T) {
	now := time.Date(2025, 3, 27, 0, 0, 0, 0, time.UTC)

	for seed := range uint64(20) {
		rng := rand.New(rand.NewPCG(seed, seed+1))
		purchases := SyntheticHistory(rng, now)

		require.NotEmpty(t, purchases)
		assert.LessOrEqual(t, len(purchases), 10)
		for i, p := range purchases {
			assert.False(t, p.Date.After(now))
			assert.False(t, p.Date.Before(now.AddDate(-1, 0, 0)))
			assert.GreaterOrEqual(t, p.Amount, 0.0)
			assert.InDelta(t, p.Amount, float64(int64(p.Amount*100+0.5))/100, 1e-9, "rounded to cents")
			assert.GreaterOrEqual(t, p.ItemsCount, 1)
			assert.LessOrEqual(t, p.ItemsCount, 20)
			if i > 0 {
				assert.False(t, p.Date.Before(purchases[i-1].Date), "ordered by date")
			}
		}
	}
}

func TestSyntheticHistory_Deterministic(t *testing.T) {
	now := time.Date(2025, 3, 27, 0, 0, 0, 0, time.UTC)

	a := SyntheticHistory(rand.New(rand.NewPCG(7, 7)), now)
	b := SyntheticHistory(rand.New(rand.NewPCG(7, 7)), now)
	assert.Equal(t, a, b)
}
