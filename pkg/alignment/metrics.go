package alignment

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Metrics describes an estimated alignment and how well it maps the
// system 1 centers onto the system 2 centers. The prior, if any, is not
// part of these numbers.
type Metrics struct {
	// Cameras is the number of corresponding cameras used
	Cameras int

	// Scale is the uniform scale factor s of s·R
	Scale float64

	// RotationDeg is the angle of R about its axis, in degrees
	RotationDeg float64

	// Translation is the translation column of the transform
	Translation r3.Vector

	// RMSE, MeanResidual and MaxResidual summarize the distances between
	// the mapped system 1 centers and the system 2 centers, in system 2 units.
	RMSE         float64
	MeanResidual float64
	MaxResidual  float64

	// Condition is the ratio of the second to the first singular value of
	// the center cross-covariance. Values near zero mean nearly collinear
	// centers and a poorly constrained rotation.
	Condition float64

	// IllConditioned is set when Condition fell below Params.ConditionWarnRatio
	IllConditioned bool
}

func computeMetrics(scale float64, R mat.Matrix, t r3.Vector, cond float64, pairs []Pair, illConditioned bool) Metrics {
	residuals := make([]float64, len(pairs))
	squared := make([]float64, len(pairs))
	for i, p := range pairs {
		residuals[i] = p.Residual
		squared[i] = p.Residual * p.Residual
	}

	m := Metrics{
		Cameras:        len(pairs),
		Scale:          scale,
		RotationDeg:    rotationAngle(R) * 180 / math.Pi,
		Translation:    t,
		Condition:      cond,
		IllConditioned: illConditioned,
	}
	if len(pairs) > 0 {
		m.RMSE = math.Sqrt(stat.Mean(squared, nil))
		m.MeanResidual = stat.Mean(residuals, nil)
		m.MaxResidual = floats.Max(residuals)
	}
	return m
}

// rotationAngle returns the angle in radians of the rotation R.
func rotationAngle(R mat.Matrix) float64 {
	c := (mat.Trace(R) - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, c)))
}
