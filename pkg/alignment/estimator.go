// Package alignment estimates the similarity transform that maps one camera
// coordinate system onto another from corresponding camera centers.
package alignment

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"mvsalign/internal/models"
	"mvsalign/pkg/camera"
)

// ScaleMethod selects how the relative scale between two systems is measured.
type ScaleMethod string

const (
	// ScaleMedian takes the median ratio of all corresponding pairwise
	// center distances.
	ScaleMedian ScaleMethod = "median"

	// ScaleBaseline takes the ratio of a single baseline, from the first
	// camera to the camera at Params.BaselineIndex, in each system.
	ScaleBaseline ScaleMethod = "baseline"
)

// Pairing selects how cameras of the two systems are matched.
type Pairing string

const (
	// PairByID matches cameras that carry the same ID.
	PairByID Pairing = "id"

	// PairByPosition matches the i-th camera of each set, i.e. sorted
	// filename order for mvsnet and log order for colmap.
	PairByPosition Pairing = "position"
)

// collinearTolerance is the ratio of the second to the first singular value
// of the center cross-covariance below which the rotation is unconstrained.
const collinearTolerance = 1e-12

// Params holds the estimator configuration.
type Params struct {
	// ScaleMethod selects the scale estimate. Defaults to ScaleMedian.
	ScaleMethod ScaleMethod

	// Pairing selects the camera correspondence. Defaults to PairByID.
	Pairing Pairing

	// BaselineIndex is the second camera of the baseline used by
	// ScaleBaseline. The first camera is always index 0.
	BaselineIndex int

	// MinCameras is the smallest number of corresponding cameras accepted.
	// Three non-collinear centers are the minimum for a unique rotation.
	MinCameras int

	// ConditionWarnRatio triggers a warning when the second singular value
	// of the center cross-covariance is this small relative to the first,
	// i.e. the centers are close to collinear.
	ConditionWarnRatio float64

	// Logger receives progress and warnings. Defaults to the logrus
	// standard logger.
	Logger logrus.FieldLogger
}

// DefaultParams returns the parameters used when none are given.
func DefaultParams() *Params {
	return &Params{
		ScaleMethod:        ScaleMedian,
		Pairing:            PairByID,
		BaselineIndex:      99,
		MinCameras:         3,
		ConditionWarnRatio: 1e-3,
		Logger:             logrus.StandardLogger(),
	}
}

// Pair is one corresponding camera after estimation.
type Pair struct {
	ID string

	// Source is the center in system 1, Target the center in system 2
	Source r3.Vector
	Target r3.Vector

	// Aligned is Source mapped by the estimated transform, before any prior
	Aligned r3.Vector

	// Residual is the distance between Aligned and Target
	Residual float64
}

// Estimator computes the transform between two camera systems. An Estimator
// keeps the pairs and metrics of its last run and is not safe for concurrent use.
type Estimator struct {
	params *Params

	pairs   []Pair
	metrics Metrics
}

// NewEstimator creates an estimator. Zero valued fields in params take the
// values from DefaultParams; a nil params uses the defaults outright.
func NewEstimator(params *Params) *Estimator {
	def := DefaultParams()
	if params == nil {
		return &Estimator{params: def}
	}
	p := *params
	if p.ScaleMethod == "" {
		p.ScaleMethod = def.ScaleMethod
	}
	if p.Pairing == "" {
		p.Pairing = def.Pairing
	}
	if p.BaselineIndex <= 0 {
		p.BaselineIndex = def.BaselineIndex
	}
	if p.MinCameras <= 0 {
		p.MinCameras = def.MinCameras
	}
	if p.ConditionWarnRatio <= 0 {
		p.ConditionWarnRatio = def.ConditionWarnRatio
	}
	if p.Logger == nil {
		p.Logger = def.Logger
	}
	return &Estimator{params: &p}
}

// Estimate returns prior · M where M is the similarity transform mapping the
// camera centers of set1 onto those of set2. Cameras are paired as selected
// by Params.Pairing; a nil prior is the identity.
func (e *Estimator) Estimate(set1, set2 models.CameraSet, prior mat.Matrix) (*mat.Dense, error) {
	e.pairs = nil
	e.metrics = Metrics{}

	order, err := correspond(set1, set2, e.params.Pairing)
	if err != nil {
		return nil, err
	}

	centers1, err := camera.Centers(set1)
	if err != nil {
		return nil, fmt.Errorf("system 1: %w", err)
	}
	centers2, err := camera.Centers(set2)
	if err != nil {
		return nil, fmt.Errorf("system 2: %w", err)
	}

	ids := make([]string, len(order))
	src := make([]r3.Vector, len(order))
	dst := make([]r3.Vector, len(order))
	for i, j := range order {
		ids[i] = set1[i].ID
		src[i] = centers1[i]
		dst[i] = centers2[j]
	}

	return e.EstimateCenters(ids, src, dst, prior)
}

// EstimateCenters is Estimate for centers that are already paired by index.
// ids may be nil.
func (e *Estimator) EstimateCenters(ids []string, src, dst []r3.Vector, prior mat.Matrix) (*mat.Dense, error) {
	e.pairs = nil
	e.metrics = Metrics{}
	log := e.params.Logger

	if len(src) != len(dst) {
		return nil, &CorrespondenceLengthError{Len1: len(src), Len2: len(dst)}
	}
	if len(src) < e.params.MinCameras {
		return nil, fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientCameras, len(src), e.params.MinCameras)
	}

	// Step 1: relative scale
	scale, err := e.scale(src, dst)
	if err != nil {
		return nil, err
	}
	log.WithField("method", e.params.ScaleMethod).Debugf("Scale: %g", scale)

	// Step 2: rotation over all pairs, scale folded in
	R, cond, err := rotation(src, dst)
	if err != nil {
		return nil, err
	}
	illConditioned := cond < e.params.ConditionWarnRatio
	if illConditioned {
		log.WithField("condition", cond).Warn("camera centers are close to collinear, rotation is poorly constrained")
	}
	var sR mat.Dense
	sR.Scale(scale, R)

	// Step 3: translation as the mean residual
	tx := make([]float64, len(src))
	ty := make([]float64, len(src))
	tz := make([]float64, len(src))
	for i := range src {
		t := dst[i].Sub(apply(&sR, src[i]))
		tx[i], ty[i], tz[i] = t.X, t.Y, t.Z
	}
	t := r3.Vector{X: stat.Mean(tx, nil), Y: stat.Mean(ty, nil), Z: stat.Mean(tz, nil)}

	M := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			M.Set(i, j, sR.At(i, j))
		}
	}
	M.Set(0, 3, t.X)
	M.Set(1, 3, t.Y)
	M.Set(2, 3, t.Z)
	M.Set(3, 3, 1)

	// Step 4: chain the prior
	result := M
	if d, ok := prior.(*mat.Dense); ok && d == nil {
		prior = nil
	}
	if prior != nil {
		if r, c := prior.Dims(); r != 4 || c != 4 {
			return nil, fmt.Errorf("prior transform must be 4x4, got %dx%d", r, c)
		}
		result = mat.NewDense(4, 4, nil)
		result.Mul(prior, M)
	}
	if !finite(result) {
		return nil, fmt.Errorf("%w: transform is not finite", ErrDegenerateGeometry)
	}

	e.pairs = make([]Pair, len(src))
	for i := range src {
		aligned := applyAffine(M, src[i])
		id := ""
		if ids != nil {
			id = ids[i]
		}
		e.pairs[i] = Pair{
			ID:       id,
			Source:   src[i],
			Target:   dst[i],
			Aligned:  aligned,
			Residual: aligned.Distance(dst[i]),
		}
	}
	e.metrics = computeMetrics(scale, R, t, cond, e.pairs, illConditioned)

	log.WithFields(logrus.Fields{
		"cameras": len(src),
		"scale":   scale,
		"rmse":    e.metrics.RMSE,
	}).Info("estimated camera system alignment")
	return result, nil
}

// GetMetrics returns the quality metrics of the last successful estimate.
func (e *Estimator) GetMetrics() Metrics {
	return e.metrics
}

// Pairs returns the corresponding centers of the last successful estimate.
func (e *Estimator) Pairs() []Pair {
	return e.pairs
}

// correspond returns, for each camera of set1, the index of its partner in set2.
func correspond(set1, set2 models.CameraSet, pairing Pairing) ([]int, error) {
	if len(set1) != len(set2) {
		return nil, &CorrespondenceLengthError{Len1: len(set1), Len2: len(set2)}
	}

	switch pairing {
	case PairByPosition:
		order := make([]int, len(set1))
		for i := range order {
			order[i] = i
		}
		return order, nil
	case PairByID:
	default:
		return nil, fmt.Errorf("unknown pairing %q", pairing)
	}

	if _, dups := set1.Index(); len(dups) > 0 {
		return nil, &CorrespondenceError{ID: dups[0], Reason: "duplicate ID in system 1"}
	}
	idx2, dups := set2.Index()
	if len(dups) > 0 {
		return nil, &CorrespondenceError{ID: dups[0], Reason: "duplicate ID in system 2"}
	}

	order := make([]int, len(set1))
	for i, cam := range set1 {
		j, ok := idx2[cam.ID]
		if !ok {
			return nil, &CorrespondenceError{ID: cam.ID, Reason: "not present in system 2"}
		}
		order[i] = j
	}
	return order, nil
}

func (e *Estimator) scale(src, dst []r3.Vector) (float64, error) {
	var (
		s   float64
		err error
	)
	switch e.params.ScaleMethod {
	case ScaleMedian:
		s, err = medianScale(src, dst)
	case ScaleBaseline:
		s, err = baselineScale(src, dst, e.params.BaselineIndex)
	default:
		return 0, fmt.Errorf("unknown scale method %q", e.params.ScaleMethod)
	}
	if err != nil {
		return 0, err
	}
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, fmt.Errorf("%w: scale %g", ErrDegenerateGeometry, s)
	}
	return s, nil
}

// baselineScale is the ratio of the distance from camera 0 to camera k in
// each system.
func baselineScale(src, dst []r3.Vector, k int) (float64, error) {
	if len(src) <= k {
		return 0, fmt.Errorf("%w: baseline camera %d requested but only %d cameras", ErrInsufficientCameras, k, len(src))
	}
	b1 := src[0].Distance(src[k])
	b2 := dst[0].Distance(dst[k])
	if b1 == 0 {
		return 0, fmt.Errorf("%w: zero baseline between cameras 0 and %d", ErrDegenerateGeometry, k)
	}
	return b2 / b1, nil
}

// medianScale is the median over all center pairs of the ratio of their
// distance in system 2 to their distance in system 1.
func medianScale(src, dst []r3.Vector) (float64, error) {
	n := len(src)
	ratios := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d1 := src[i].Distance(src[j])
			if d1 == 0 {
				continue
			}
			ratios = append(ratios, dst[i].Distance(dst[j])/d1)
		}
	}
	if len(ratios) == 0 {
		return 0, fmt.Errorf("%w: all system 1 centers coincide", ErrDegenerateGeometry)
	}
	sort.Float64s(ratios)
	return median(ratios), nil
}

// median of sorted, non-empty x. An even count averages the two middle values.
func median(x []float64) float64 {
	n := len(x)
	if n%2 == 1 {
		return x[n/2]
	}
	return (x[n/2-1] + x[n/2]) / 2
}

// rotation solves for the orthonormal R minimizing Σ||(b_i-b̄) - R(a_i-ā)||²
// via the SVD of the cross-covariance. The second return value is the ratio
// of the second to the first singular value.
func rotation(src, dst []r3.Vector) (*mat.Dense, float64, error) {
	ca := centroid(src)
	cb := centroid(dst)

	H := mat.NewDense(3, 3, nil)
	for i := range src {
		a := components(src[i].Sub(ca))
		b := components(dst[i].Sub(cb))
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				H.Set(r, c, H.At(r, c)+a[r]*b[c])
			}
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(H, mat.SVDFull); !ok {
		return nil, 0, fmt.Errorf("%w: SVD of center covariance failed", ErrDegenerateGeometry)
	}
	values := svd.Values(nil)
	if values[0] == 0 {
		return nil, 0, fmt.Errorf("%w: camera centers coincide", ErrDegenerateGeometry)
	}
	cond := values[1] / values[0]
	if cond < collinearTolerance {
		return nil, cond, fmt.Errorf("%w: camera centers are collinear", ErrDegenerateGeometry)
	}

	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	var VUt mat.Dense
	VUt.Mul(&V, U.T())
	d := 1.0
	if mat.Det(&VUt) < 0 {
		d = -1
	}

	var R mat.Dense
	R.Product(&V, mat.NewDiagDense(3, []float64{1, 1, d}), U.T())
	return &R, cond, nil
}

func centroid(pts []r3.Vector) r3.Vector {
	var sum r3.Vector
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(pts)))
}

func components(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// apply multiplies v by the upper-left 3x3 block of m.
func apply(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// applyAffine maps v by the 4x4 homogeneous transform m.
func applyAffine(m mat.Matrix, v r3.Vector) r3.Vector {
	return apply(m, v).Add(r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)})
}

func finite(m *mat.Dense) bool {
	for _, v := range m.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
