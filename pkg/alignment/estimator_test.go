package alignment

import (
	"errors"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"mvsalign/internal/models"
	"mvsalign/pkg/camera"
)

// quietParams returns default parameters with logging discarded
func quietParams() *Params {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p := DefaultParams()
	p.Logger = logger
	return p
}

func rotZ(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

func rotX(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

// poseFromCenter builds a world-to-camera pose [R | -R·C] whose center is C.
func poseFromCenter(R mat.Matrix, C r3.Vector) *mat.Dense {
	t := apply(R, C).Mul(-1)
	pose := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			pose.Set(i, j, R.At(i, j))
		}
	}
	pose.Set(0, 3, t.X)
	pose.Set(1, 3, t.Y)
	pose.Set(2, 3, t.Z)
	pose.Set(3, 3, 1)
	return pose
}

// circularCenters returns n centers on a wavy circle of radius 5.
func circularCenters(n int) []r3.Vector {
	centers := make([]r3.Vector, n)
	for i := range centers {
		theta := 2 * math.Pi * float64(i) / float64(n)
		centers[i] = r3.Vector{
			X: 5 * math.Cos(theta),
			Y: 5 * math.Sin(theta),
			Z: 0.5 * math.Sin(3*theta),
		}
	}
	return centers
}

// rigFromCenters wraps centers into a camera set with IDs "0".."n-1".
func rigFromCenters(centers []r3.Vector) models.CameraSet {
	set := make(models.CameraSet, len(centers))
	for i, c := range centers {
		var R mat.Dense
		R.Mul(rotZ(2*math.Pi*float64(i)/float64(len(centers))), rotX(0.3))
		set[i] = models.Camera{
			ID:     fmt.Sprint(i),
			Source: fmt.Sprintf("cam_%03d", i),
			Pose:   poseFromCenter(&R, c),
		}
	}
	return set
}

// similarity builds the 4x4 transform [[s·R, t],[0 0 0 1]].
func similarity(s float64, R mat.Matrix, t r3.Vector) *mat.Dense {
	M := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			M.Set(i, j, s*R.At(i, j))
		}
	}
	M.Set(0, 3, t.X)
	M.Set(1, 3, t.Y)
	M.Set(2, 3, t.Z)
	M.Set(3, 3, 1)
	return M
}

func mapCenters(M mat.Matrix, centers []r3.Vector) []r3.Vector {
	out := make([]r3.Vector, len(centers))
	for i, c := range centers {
		out[i] = applyAffine(M, c)
	}
	return out
}

// TestEstimateRecoversKnownSimilarity rotates a 110 camera rig by 30° about
// Z, scales it by 2 and translates it by [1 2 3].
func TestEstimateRecoversKnownSimilarity(t *testing.T) {
	centersA := circularCenters(110)
	want := similarity(2, rotZ(math.Pi/6), r3.Vector{X: 1, Y: 2, Z: 3})
	rigA := rigFromCenters(centersA)
	rigB := rigFromCenters(mapCenters(want, centersA))

	e := NewEstimator(quietParams())
	got, err := e.Estimate(rigA, rigB, nil)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(got, want, 1e-3), "estimated transform:\n%v\nwant:\n%v", mat.Formatted(got), mat.Formatted(want))

	m := e.GetMetrics()
	assert.Equal(t, 110, m.Cameras)
	assert.InDelta(t, 2.0, m.Scale, 1e-3)
	assert.InDelta(t, 30.0, m.RotationDeg, 1e-3)
	assert.InDelta(t, 1.0, m.Translation.X, 1e-3)
	assert.InDelta(t, 2.0, m.Translation.Y, 1e-3)
	assert.InDelta(t, 3.0, m.Translation.Z, 1e-3)
	assert.Less(t, m.RMSE, 1e-6)
	assert.False(t, m.IllConditioned)

	var R mat.Dense
	R.Scale(1/m.Scale, got.Slice(0, 3, 0, 3))
	assert.InDelta(t, 1.0, mat.Det(&R), 1e-9, "rotation must not be a reflection")
}

func TestEstimateIdentityNoOp(t *testing.T) {
	rig := rigFromCenters(circularCenters(120))

	got, err := NewEstimator(quietParams()).Estimate(rig, rig, mat.NewDiagDense(4, []float64{1, 1, 1, 1}))
	require.NoError(t, err)

	identity := mat.NewDiagDense(4, []float64{1, 1, 1, 1})
	assert.True(t, mat.EqualApprox(got, identity, 1e-9), "got:\n%v", mat.Formatted(got))
}

func TestEstimateScaleAboutOrigin(t *testing.T) {
	for _, k := range []float64{0.25, 1, 3.5, 1000} {
		t.Run(fmt.Sprint(k), func(t *testing.T) {
			centers := circularCenters(100)
			scaled := make([]r3.Vector, len(centers))
			for i, c := range centers {
				scaled[i] = c.Mul(k)
			}

			e := NewEstimator(quietParams())
			got, err := e.Estimate(rigFromCenters(centers), rigFromCenters(scaled), nil)
			require.NoError(t, err)

			assert.InDelta(t, k, e.GetMetrics().Scale, 1e-9*k)
			want := mat.NewDiagDense(4, []float64{k, k, k, 1})
			assert.True(t, mat.EqualApprox(got, want, 1e-6*k), "got:\n%v", mat.Formatted(got))
		})
	}
}

func TestEstimateCompositionLaw(t *testing.T) {
	centers := circularCenters(105)
	target := mapCenters(similarity(1.7, rotX(0.4), r3.Vector{X: -3, Y: 0.5, Z: 9}), centers)
	rigA, rigB := rigFromCenters(centers), rigFromCenters(target)

	base, err := NewEstimator(quietParams()).Estimate(rigA, rigB, nil)
	require.NoError(t, err)

	prior := similarity(0.5, rotZ(1.2), r3.Vector{X: 10, Y: -4, Z: 2})
	got, err := NewEstimator(quietParams()).Estimate(rigA, rigB, prior)
	require.NoError(t, err)

	var want mat.Dense
	want.Mul(prior, base)
	assert.True(t, mat.EqualApprox(got, &want, 1e-9), "got:\n%v\nwant:\n%v", mat.Formatted(got), mat.Formatted(&want))
}

func TestEstimatePairsByID(t *testing.T) {
	centers := circularCenters(30)
	rigA := rigFromCenters(centers)
	rigB := rigFromCenters(mapCenters(similarity(3, rotZ(-0.7), r3.Vector{Z: 4}), centers))

	ordered, err := NewEstimator(quietParams()).Estimate(rigA, rigB, nil)
	require.NoError(t, err)

	// reverse system 2 so that positional pairing would be wrong
	reversed := make(models.CameraSet, len(rigB))
	for i := range rigB {
		reversed[len(rigB)-1-i] = rigB[i]
	}
	e := NewEstimator(quietParams())
	shuffled, err := e.Estimate(rigA, reversed, nil)
	require.NoError(t, err)

	assert.True(t, mat.EqualApprox(ordered, shuffled, 1e-9))
	for i, p := range e.Pairs() {
		assert.Equal(t, rigA[i].ID, p.ID)
	}
}

// TestEstimatePairsByPosition renumbers system 2 from 1 so that IDs no longer
// match while order still does.
func TestEstimatePairsByPosition(t *testing.T) {
	centers := circularCenters(110)
	want := similarity(2, rotZ(math.Pi/6), r3.Vector{X: 1, Y: 2, Z: 3})
	rigA := rigFromCenters(centers)
	rigB := rigFromCenters(mapCenters(want, centers))
	for i := range rigB {
		rigB[i].ID = fmt.Sprint(i + 1)
	}

	_, err := NewEstimator(quietParams()).Estimate(rigA, rigB, nil)
	var corrErr *CorrespondenceError
	require.ErrorAs(t, err, &corrErr)

	p := quietParams()
	p.Pairing = PairByPosition
	e := NewEstimator(p)
	got, err := e.Estimate(rigA, rigB, nil)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(got, want, 1e-9), "got:\n%v", mat.Formatted(got))
	assert.Equal(t, "0", e.Pairs()[0].ID)

	_, err = NewEstimator(p).Estimate(rigA, rigB[:100], nil)
	var lenErr *CorrespondenceLengthError
	assert.ErrorAs(t, err, &lenErr)

	p.Pairing = "nearest"
	_, err = NewEstimator(p).Estimate(rigA, rigB, nil)
	assert.Error(t, err)
}

func TestEstimateCorrespondenceErrors(t *testing.T) {
	rig := rigFromCenters(circularCenters(10))

	t.Run("length", func(t *testing.T) {
		_, err := NewEstimator(quietParams()).Estimate(rig, rig[:9], nil)
		var lenErr *CorrespondenceLengthError
		require.ErrorAs(t, err, &lenErr)
		assert.Equal(t, 10, lenErr.Len1)
		assert.Equal(t, 9, lenErr.Len2)
	})

	t.Run("missing id", func(t *testing.T) {
		other := append(models.CameraSet{}, rig...)
		other[4].ID = "unknown"
		_, err := NewEstimator(quietParams()).Estimate(rig, other, nil)
		var corrErr *CorrespondenceError
		require.ErrorAs(t, err, &corrErr)
		assert.Equal(t, "4", corrErr.ID)
	})

	t.Run("duplicate id", func(t *testing.T) {
		other := append(models.CameraSet{}, rig...)
		other[4].ID = other[3].ID
		_, err := NewEstimator(quietParams()).Estimate(rig, other, nil)
		var corrErr *CorrespondenceError
		require.ErrorAs(t, err, &corrErr)
		assert.Equal(t, "3", corrErr.ID)
	})
}

func TestEstimateBaselineScale(t *testing.T) {
	centers := circularCenters(110)
	target := mapCenters(similarity(2, rotZ(math.Pi/6), r3.Vector{X: 1, Y: 2, Z: 3}), centers)

	p := quietParams()
	p.ScaleMethod = ScaleBaseline
	e := NewEstimator(p)
	_, err := e.Estimate(rigFromCenters(centers), rigFromCenters(target), nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, e.GetMetrics().Scale, 1e-9)

	_, err = NewEstimator(p).Estimate(rigFromCenters(centers[:50]), rigFromCenters(target[:50]), nil)
	assert.ErrorIs(t, err, ErrInsufficientCameras)
}

func TestMedianScaleIgnoresOutlier(t *testing.T) {
	src := circularCenters(110)
	dst := make([]r3.Vector, len(src))
	for i, c := range src {
		dst[i] = c.Mul(2)
	}
	dst[0] = dst[0].Add(r3.Vector{X: 7, Y: -3, Z: 2})

	median, err := medianScale(src, dst)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, median, 1e-9)

	baseline, err := baselineScale(src, dst, 99)
	require.NoError(t, err)
	assert.Greater(t, math.Abs(baseline-2), 0.1, "a corrupted baseline camera should skew the baseline scale")
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, median([]float64{1, 2, 3}))
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 7.0, median([]float64{7}))
}

func TestEstimateDegenerateGeometry(t *testing.T) {
	t.Run("collinear", func(t *testing.T) {
		line := make([]r3.Vector, 20)
		for i := range line {
			line[i] = r3.Vector{X: float64(i), Y: 2 * float64(i), Z: -float64(i)}
		}
		_, err := NewEstimator(quietParams()).EstimateCenters(nil, line, line, nil)
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
	})

	t.Run("coincident", func(t *testing.T) {
		same := make([]r3.Vector, 5)
		for i := range same {
			same[i] = r3.Vector{X: 1, Y: 1, Z: 1}
		}
		_, err := NewEstimator(quietParams()).EstimateCenters(nil, same, same, nil)
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
	})

	t.Run("too few", func(t *testing.T) {
		pts := circularCenters(2)
		_, err := NewEstimator(quietParams()).EstimateCenters(nil, pts, pts, nil)
		assert.ErrorIs(t, err, ErrInsufficientCameras)
	})
}

func TestEstimateDegenerateCamera(t *testing.T) {
	rig := rigFromCenters(circularCenters(10))
	broken := append(models.CameraSet{}, rig...)
	broken[2].Pose = mat.NewDense(4, 4, nil)

	_, err := NewEstimator(quietParams()).Estimate(rig, broken, nil)
	require.ErrorIs(t, err, camera.ErrDegenerateCamera)

	var dce *camera.DegenerateCameraError
	require.True(t, errors.As(err, &dce))
	assert.Equal(t, "2", dce.ID)
}

func TestEstimateReportsResiduals(t *testing.T) {
	centers := circularCenters(40)
	target := mapCenters(similarity(1, rotZ(0.2), r3.Vector{X: 1}), centers)
	target[5] = target[5].Add(r3.Vector{Z: 0.5})

	e := NewEstimator(quietParams())
	_, err := e.EstimateCenters(nil, centers, target, nil)
	require.NoError(t, err)

	pairs := e.Pairs()
	require.Len(t, pairs, 40)
	residuals := make([]float64, len(pairs))
	worst := 0
	for i, p := range pairs {
		residuals[i] = p.Residual
		if p.Residual > pairs[worst].Residual {
			worst = i
		}
	}
	assert.Equal(t, 5, worst)

	m := e.GetMetrics()
	assert.InDelta(t, residuals[5], m.MaxResidual, 1e-12)
	assert.Greater(t, m.RMSE, 0.0)
	assert.GreaterOrEqual(t, m.MaxResidual, m.MeanResidual)
}

func TestEstimateWarnsWhenNearlyCollinear(t *testing.T) {
	pts := make([]r3.Vector, 20)
	for i := range pts {
		pts[i] = r3.Vector{X: float64(i), Y: 1e-3 * math.Sin(float64(i)), Z: 1e-3 * math.Cos(float64(i))}
	}
	e := NewEstimator(quietParams())
	_, err := e.EstimateCenters(nil, pts, pts, nil)
	require.NoError(t, err)
	assert.True(t, e.GetMetrics().IllConditioned)
}

func TestNewEstimatorDefaults(t *testing.T) {
	e := NewEstimator(&Params{})
	want := DefaultParams()
	opts := cmpopts.IgnoreFields(Params{}, "Logger")
	if diff := cmp.Diff(want, e.params, opts); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	assert.NotNil(t, e.params.Logger)
}
