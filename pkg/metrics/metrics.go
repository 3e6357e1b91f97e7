// Package metrics provides the error metrics plugged into intermediate
// function pairs: each type scores the mismatch between two index-aligned
// sample vectors, lower meaning more consistent. All metrics panic when
// the vectors differ in length, following the gonum convention; pairs
// guarantee equal lengths by construction.
package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

func diff64(first, second []float32) []float64 {
	if len(first) != len(second) {
		panic("metrics: sample vectors differ in length")
	}
	d := make([]float64, len(first))
	for i := range first {
		d[i] = float64(first[i]) - float64(second[i])
	}
	return d
}

// L1 scores the mean absolute difference.
type L1 struct{}

func (L1) Evaluate(first, second []float32) float64 {
	d := diff64(first, second)
	if len(d) == 0 {
		return 0
	}
	return floats.Norm(d, 1) / float64(len(d))
}

// L2 scores the Euclidean norm of the difference vector.
type L2 struct{}

func (L2) Evaluate(first, second []float32) float64 {
	return floats.Norm(diff64(first, second), 2)
}

// RMSE scores the root mean square error.
type RMSE struct{}

func (RMSE) Evaluate(first, second []float32) float64 {
	d := diff64(first, second)
	if len(d) == 0 {
		return 0
	}
	return floats.Norm(d, 2) / math.Sqrt(float64(len(d)))
}

// NegCorrelation scores the negated Pearson correlation of the two
// vectors: -1 for perfectly correlated signals, +1 for anti-correlated
// ones. Correlation is invariant under gain and offset, which makes this
// the usual choice when the two intermediate functions differ by an
// unknown intensity scaling.
type NegCorrelation struct{}

func (NegCorrelation) Evaluate(first, second []float32) float64 {
	if len(first) != len(second) {
		panic("metrics: sample vectors differ in length")
	}
	if len(first) < 2 {
		return 0
	}
	r := stat.Correlation(toFloat64(first), toFloat64(second), nil)
	if math.IsNaN(r) {
		// A constant signal has no correlation; score it neutral.
		return 0
	}
	return -r
}

// GemanMcClure scores the mean of the redescending Geman-McClure loss
// d^2/(d^2 + Scale^2), which saturates at 1 per sample and so caps the
// influence of outliers. A Scale of zero or less falls back to 1.
type GemanMcClure struct {
	Scale float64
}

func (m GemanMcClure) Evaluate(first, second []float32) float64 {
	d := diff64(first, second)
	if len(d) == 0 {
		return 0
	}
	s2 := m.Scale * m.Scale
	if s2 <= 0 {
		s2 = 1
	}
	var sum float64
	for _, v := range d {
		sum += v * v / (v*v + s2)
	}
	return sum / float64(len(d))
}
