package camera

import (
	"errors"
	"fmt"
)

// ErrDegenerateCamera is matched by every DegenerateCameraError.
var ErrDegenerateCamera = errors.New("degenerate camera")

// ParseError reports a pose file that could not be tokenized into the
// expected numeric fields.
type ParseError struct {
	Path string
	// Line is 1-based, or 0 when the error is not tied to a line
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DegenerateCameraError reports a pose whose projection block has no
// usable 1-dimensional null space, or whose center lies at infinity.
type DegenerateCameraError struct {
	ID     string
	Reason string
}

func (e *DegenerateCameraError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("degenerate camera: %s", e.Reason)
	}
	return fmt.Sprintf("degenerate camera %q: %s", e.ID, e.Reason)
}

func (e *DegenerateCameraError) Is(target error) bool {
	return target == ErrDegenerateCamera
}
