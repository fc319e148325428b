package models

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrUnsupportedFormat is matched by every UnsupportedFormatError.
var ErrUnsupportedFormat = errors.New("unsupported camera format")

// Format names an on-disk camera pose convention.
type Format string

const (
	// FormatMVSNet is one "*cam.txt" file per camera holding the world-to-camera
	// extrinsic after a leading "extrinsic" token.
	FormatMVSNet Format = "mvsnet"

	// FormatCOLMAP is a single log file of 5-line groups, each holding a
	// camera-to-world matrix after a header line.
	FormatCOLMAP Format = "colmap"
)

// Formats lists every recognized format.
var Formats = []Format{FormatMVSNet, FormatCOLMAP}

// UnsupportedFormatError reports a format name outside Formats.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unknown format type '%s' (must be one of %s)", e.Format, formatList())
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ParseFormat maps a user supplied name onto a Format. Matching ignores case
// and surrounding whitespace.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	if !f.Valid() {
		return "", &UnsupportedFormatError{Format: name}
	}
	return f, nil
}

// Valid reports whether f is one of Formats.
func (f Format) Valid() bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

func (f Format) String() string { return string(f) }

func formatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Camera is a single posed camera.
type Camera struct {
	// ID is the correspondence key shared by the same physical camera
	// across two systems.
	ID string

	// Source is the file the pose was read from
	Source string

	// Pose is the 4x4 world-to-camera extrinsic. The bottom row is assumed
	// to be [0 0 0 1] and is not validated.
	Pose *mat.Dense
}

// CameraSet is an ordered list of cameras from one coordinate system.
type CameraSet []Camera

// IDs returns the camera IDs in set order.
func (s CameraSet) IDs() []string {
	ids := make([]string, len(s))
	for i, c := range s {
		ids[i] = c.ID
	}
	return ids
}

// Index maps each ID to its first position in the set, and returns any IDs
// that occur more than once.
func (s CameraSet) Index() (map[string]int, []string) {
	idx := make(map[string]int, len(s))
	var dups []string
	for i, c := range s {
		if _, seen := idx[c.ID]; seen {
			dups = append(dups, c.ID)
			continue
		}
		idx[c.ID] = i
	}
	return idx, dups
}
