package alignment

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCameras is returned when too few corresponding cameras
	// are available for the selected scale method.
	ErrInsufficientCameras = errors.New("insufficient corresponding cameras")

	// ErrDegenerateGeometry is returned when the camera centers do not
	// constrain a similarity transform (coincident or collinear centers,
	// zero baseline) or the result is not finite.
	ErrDegenerateGeometry = errors.New("degenerate camera geometry")
)

// CorrespondenceLengthError reports two camera sets of different size.
type CorrespondenceLengthError struct {
	Len1, Len2 int
}

func (e *CorrespondenceLengthError) Error() string {
	return fmt.Sprintf("camera sets differ in length: %d vs %d", e.Len1, e.Len2)
}

// CorrespondenceError reports a camera that cannot be paired by ID.
type CorrespondenceError struct {
	ID     string
	Reason string
}

func (e *CorrespondenceError) Error() string {
	return fmt.Sprintf("camera %q: %s", e.ID, e.Reason)
}
