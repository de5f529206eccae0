package prediction

import (
	"math"
	"sort"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/database"
)

// pairs returns consecutive (previous, current) amounts of every history with
// at least two purchases. Customers are visited in id order.
func pairs(histories map[string][]database.Purchase) (xs, ys []float64) {
	ids := make([]string, 0, len(histories))
	for id := range histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		h := histories[id]
		for i := 1; i < len(h); i++ {
			xs = append(xs, h[i-1].Amount)
			ys = append(ys, h[i].Amount)
		}
	}
	return xs, ys
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// simpleFit averages every purchase amount, falling back to the default bill.
func simpleFit(histories map[string][]database.Purchase) SimpleModel {
	var amounts []float64
	for _, h := range histories {
		for _, p := range h {
			amounts = append(amounts, p.Amount)
		}
	}
	if len(amounts) == 0 {
		return SimpleModel{AvgBill: constants.DefaultBill}
	}
	avg := mean(amounts)
	if !finite(avg) {
		return SimpleModel{AvgBill: constants.DefaultBill}
	}
	return SimpleModel{AvgBill: avg}
}

// Fit trains a model from purchase histories and returns it with the number of
// training pairs. Fewer than two pairs or non-finite data yield a SimpleModel.
// A degenerate least-squares fit keeps the regression with slope 0 and the mean target.
func Fit(histories map[string][]database.Purchase) (Model, int) {
	xs, ys := pairs(histories)
	if len(xs) < 2 {
		return simpleFit(histories), len(xs)
	}

	for i := range xs {
		if !finite(xs[i]) || !finite(ys[i]) {
			return simpleFit(histories), len(xs)
		}
	}

	mx, my := mean(xs), mean(ys)
	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ys[i] - my)
	}

	if sxx == 0 {
		return RegressionModel{Slope: 0, Intercept: my}, len(xs)
	}
	slope := sxy / sxx
	intercept := my - slope*mx
	if !finite(slope) || !finite(intercept) {
		return RegressionModel{Slope: 0, Intercept: my}, len(xs)
	}
	return RegressionModel{Slope: slope, Intercept: intercept}, len(xs)
}
