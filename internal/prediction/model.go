// Package prediction forecasts a customer's next bill from purchase history.
package prediction

// Model is the globally trained bill model. It is either SimpleModel or RegressionModel.
type Model interface {
	// Kind returns the artifact type name.
	Kind() string
	sealed()
}

// SimpleModel predicts from the global average bill.
type SimpleModel struct {
	AvgBill float64
}

// RegressionModel predicts the next bill from the previous one: next = Slope*prev + Intercept.
type RegressionModel struct {
	Slope     float64
	Intercept float64
}

const (
	KindSimple           = "simple"
	KindLinearRegression = "linear_regression"
)

func (SimpleModel) Kind() string     { return KindSimple }
func (RegressionModel) Kind() string { return KindLinearRegression }

func (SimpleModel) sealed()     {}
func (RegressionModel) sealed() {}
