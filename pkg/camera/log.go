package camera

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"mvsalign/internal/models"
	"mvsalign/pkg/transform"
)

// WriteLog writes cams in the colmap camera_pose.log layout. Camera i gets the
// header "i i 0" followed by prior · pose⁻¹, its camera-to-world matrix mapped
// into the prior's frame. A nil prior is the identity.
func WriteLog(w io.Writer, cams models.CameraSet, prior mat.Matrix) error {
	if d, ok := prior.(*mat.Dense); ok && d == nil {
		prior = nil
	}
	if prior != nil {
		if r, c := prior.Dims(); r != 4 || c != 4 {
			return fmt.Errorf("alignment transform must be 4x4, got %dx%d", r, c)
		}
	}

	for i, cam := range cams {
		if cam.Pose == nil {
			return &DegenerateCameraError{ID: cam.ID, Reason: "missing pose"}
		}
		var camToWorld mat.Dense
		if err := camToWorld.Inverse(cam.Pose); err != nil {
			return &DegenerateCameraError{ID: cam.ID, Reason: fmt.Sprintf("pose is not invertible: %v", err)}
		}
		out := &camToWorld
		if prior != nil {
			out = mat.NewDense(4, 4, nil)
			out.Mul(prior, &camToWorld)
		}

		if _, err := fmt.Fprintf(w, "%d %d 0\n", i, i); err != nil {
			return err
		}
		if err := transform.WriteMatrix(w, out); err != nil {
			return err
		}
	}
	return nil
}

// WriteLogFile writes cams to path with WriteLog.
func WriteLogFile(path string, cams models.CameraSet, prior mat.Matrix) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating camera log: %w", err)
	}
	if err := WriteLog(f, cams, prior); err != nil {
		f.Close()
		return fmt.Errorf("error writing camera log: %w", err)
	}
	return f.Close()
}
