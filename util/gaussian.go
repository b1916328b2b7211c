package util

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogGaussian is the Gaussian log-density of x relative to the density at the
// mean. It is never positive, so adding it can only lower a score.
func LogGaussian(x, mean, std float64) float64 {
	n := distuv.Normal{Mu: mean, Sigma: std}
	return n.LogProb(x) - n.LogProb(mean)
}

// CoefficientOfVariation is the population standard deviation of xs divided
// by their mean. Fewer than two values, or a zero mean, count as perfectly even.
func CoefficientOfVariation(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean, variance := stat.MeanVariance(xs, nil)
	if mean == 0 {
		return 0
	}
	n := float64(len(xs))
	return math.Sqrt(variance*(n-1)/n) / math.Abs(mean)
}
