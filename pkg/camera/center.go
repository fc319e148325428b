package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"mvsalign/internal/models"
)

// rankTolerance is the singular value threshold, relative to the largest,
// below which the projection block is treated as rank deficient.
const rankTolerance = 1e-12

// Center returns the optical center of a camera as the null space of the
// leading 3x4 block of its pose, normalized so the homogeneous coordinate is 1.
func Center(pose mat.Matrix) (r3.Vector, error) {
	r, c := pose.Dims()
	if r < 3 || c != 4 {
		return r3.Vector{}, &DegenerateCameraError{Reason: fmt.Sprintf("pose is %dx%d, need at least 3x4", r, c)}
	}

	P := mat.DenseCopyOf(pose).Slice(0, 3, 0, 4)

	var svd mat.SVD
	if ok := svd.Factorize(P, mat.SVDFull); !ok {
		return r3.Vector{}, &DegenerateCameraError{Reason: "SVD factorization failed"}
	}
	values := svd.Values(nil)
	if values[0] == 0 {
		return r3.Vector{}, &DegenerateCameraError{Reason: "projection block is zero"}
	}
	if rank := svd.Rank(rankTolerance); rank != 3 {
		return r3.Vector{}, &DegenerateCameraError{
			Reason: fmt.Sprintf("projection block has rank %d, null space is not 1-dimensional", rank),
		}
	}

	var V mat.Dense
	svd.VTo(&V)
	null := V.ColView(3)

	w := null.AtVec(3)
	if math.Abs(w) < rankTolerance*mat.Norm(null, 2) {
		return r3.Vector{}, &DegenerateCameraError{Reason: "camera center lies at infinity"}
	}
	return r3.Vector{
		X: null.AtVec(0) / w,
		Y: null.AtVec(1) / w,
		Z: null.AtVec(2) / w,
	}, nil
}

// Centers computes the center of every camera in the set.
func Centers(set models.CameraSet) ([]r3.Vector, error) {
	centers := make([]r3.Vector, len(set))
	for i, cam := range set {
		if cam.Pose == nil {
			return nil, fmt.Errorf("camera %d: %w", i, &DegenerateCameraError{ID: cam.ID, Reason: "missing pose"})
		}
		c, err := Center(cam.Pose)
		if err != nil {
			var dce *DegenerateCameraError
			if errors.As(err, &dce) {
				dce.ID = cam.ID
			}
			return nil, fmt.Errorf("camera %d (%s): %w", i, cam.Source, err)
		}
		centers[i] = c
	}
	return centers, nil
}

// Homogeneous returns c as the 4-vector [x y z 1].
func Homogeneous(c r3.Vector) *mat.VecDense {
	return mat.NewVecDense(4, []float64{c.X, c.Y, c.Z, 1})
}
