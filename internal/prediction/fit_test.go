package prediction

import (
	"math"
	"testing"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(amounts ...float64) []database.Purchase {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]database.Purchase, len(amounts))
	for i, a := range amounts {
		out[i] = database.Purchase{Date: base.AddDate(0, 0, 7*i), Amount: a}
	}
	return out
}

func TestFit_EmptyDefaults(t *testing.T) {
	m, samples := Fit(nil)

	assert.Equal(t, SimpleModel{AvgBill: 100}, m)
	assert.Zero(t, samples)
}

func TestFit_TooFewPairsIsSimple(t *testing.T) {
	m, samples := Fit(map[string][]database.Purchase{
		"C1": history(100, 140),
		"C2": history(60),
	})

	require.IsType(t, SimpleModel{}, m)
	assert.Equal(t, 1, samples)
	assert.InDelta(t, 100.0, m.(SimpleModel).AvgBill, 1e-9)
}

func TestFit_ExactLine(t *testing.T) {
	// next = 2*prev + 10
	m, samples := Fit(map[string][]database.Purchase{
		"C1": history(10, 30, 70),
		"C2": history(5, 20),
	})

	require.IsType(t, RegressionModel{}, m)
	assert.Equal(t, 3, samples)
	r := m.(RegressionModel)
	assert.InDelta(t, 2.0, r.Slope, 1e-9)
	assert.InDelta(t, 10.0, r.Intercept, 1e-9)
}

func TestFit_DegenerateVariance(t *testing.T) {
	m, _ := Fit(map[string][]database.Purchase{
		"C1": history(50, 80),
		"C2": history(50, 120),
	})

	require.IsType(t, RegressionModel{}, m)
	r := m.(RegressionModel)
	assert.Zero(t, r.Slope)
	assert.InDelta(t, 100.0, r.Intercept, 1e-9)
}

func TestFit_NonFiniteFallsBackToSimple(t *testing.T) {
	m, _ := Fit(map[string][]database.Purchase{
		"C1": history(50, math.Inf(1), 70),
	})

	require.IsType(t, SimpleModel{}, m)
	assert.InDelta(t, 100.0, m.(SimpleModel).AvgBill, 1e-9)
}

func TestArtifact_RoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 28, 9, 0, 0, 0, time.UTC)

	for _, m := range []Model{SimpleModel{AvgBill: 87.5}, RegressionModel{Slope: 0.8, Intercept: 12}} {
		t.Run(m.Kind(), func(t *testing.T) {
			got, err := NewArtifact(m, 4, at).ToModel()
			require.NoError(t, err)
			assert.Equal(t, m, got)
		})
	}
}

func TestArtifact_Invalid(t *testing.T) {
	_, err := Artifact{Type: "forest"}.ToModel()
	assert.Error(t, err)

	_, err = Artifact{Type: KindSimple}.ToModel()
	assert.Error(t, err)

	_, err = Artifact{Type: KindLinearRegression}.ToModel()
	assert.Error(t, err)
}
