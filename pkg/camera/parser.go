// Package camera reads camera poses from the mvsnet and colmap on-disk
// conventions and derives camera centers from them.
package camera

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"mvsalign/internal/models"
)

const (
	// DefaultMVSNetSuffix is the filename suffix of mvsnet camera files
	DefaultMVSNetSuffix = "cam.txt"

	// DefaultCOLMAPLogName is the log file looked up when a colmap path is a directory
	DefaultCOLMAPLogName = "camera_pose.log"

	// colmapGroupLines is the header line plus four matrix rows
	colmapGroupLines = 5
)

// Options controls where the parser looks for pose files.
type Options struct {
	// MVSNetSuffix selects camera files inside an mvsnet directory
	MVSNetSuffix string

	// COLMAPLogName is the log file name used when a colmap path is a directory
	COLMAPLogName string
}

// DefaultOptions returns the conventional file names.
func DefaultOptions() Options {
	return Options{
		MVSNetSuffix:  DefaultMVSNetSuffix,
		COLMAPLogName: DefaultCOLMAPLogName,
	}
}

// Parser reads camera sets.
type Parser struct {
	opts Options
}

// NewParser creates a parser. Empty option fields fall back to the defaults.
func NewParser(opts Options) *Parser {
	def := DefaultOptions()
	if opts.MVSNetSuffix == "" {
		opts.MVSNetSuffix = def.MVSNetSuffix
	}
	if opts.COLMAPLogName == "" {
		opts.COLMAPLogName = def.COLMAPLogName
	}
	return &Parser{opts: opts}
}

// Parse reads a camera set with the default options.
func Parse(path string, format models.Format) (models.CameraSet, error) {
	return NewParser(DefaultOptions()).Parse(path, format)
}

// Parse reads the cameras stored at path in the given format. Every pose in
// the returned set is world-to-camera.
func (p *Parser) Parse(path string, format models.Format) (models.CameraSet, error) {
	switch format {
	case models.FormatMVSNet:
		return p.parseMVSNet(path)
	case models.FormatCOLMAP:
		return p.parseCOLMAP(path)
	default:
		return nil, &models.UnsupportedFormatError{Format: string(format)}
	}
}

// parseMVSNet loads one camera per "*cam.txt" file. Files are taken in
// lexicographic order so two directories with the same naming line up.
func (p *Parser) parseMVSNet(dir string) (models.CameraSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read mvsnet camera directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), p.opts.MVSNetSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no files ending in %q found in %s", p.opts.MVSNetSuffix, dir)
	}
	sort.Strings(names)

	cams := make(models.CameraSet, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		pose, err := readMVSNetExtrinsic(path)
		if err != nil {
			return nil, err
		}
		id := strings.TrimRight(strings.TrimSuffix(name, p.opts.MVSNetSuffix), "_")
		cams = append(cams, models.Camera{
			ID:     NormalizeID(id),
			Source: path,
			Pose:   pose,
		})
	}
	return cams, nil
}

// readMVSNetExtrinsic reads tokens 1..16 of a cam file into a 4x4 matrix.
// Token 0 is the "extrinsic" label; the intrinsic block that follows is ignored.
func readMVSNetExtrinsic(path string) (*mat.Dense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera file: %w", err)
	}
	words := strings.Fields(string(data))
	if len(words) < 17 {
		return nil, &ParseError{
			Path: path,
			Err:  fmt.Errorf("expected at least 17 tokens, got %d", len(words)),
		}
	}

	vals := make([]float64, 16)
	for i := range vals {
		v, err := strconv.ParseFloat(words[i+1], 64)
		if err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("extrinsic entry %d: %w", i, err)}
		}
		vals[i] = v
	}
	return mat.NewDense(4, 4, vals), nil
}

// parseCOLMAP loads a camera_pose.log style file. Each group of five lines is
// a header followed by the camera-to-world matrix, which is inverted.
func (p *Parser) parseCOLMAP(path string) (models.CameraSet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat colmap path: %w", err)
	}
	if info.IsDir() {
		path = filepath.Join(path, p.opts.COLMAPLogName)
	}

	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read colmap log: %w", err)
	}
	if len(lines) == 0 {
		return nil, &ParseError{Path: path, Err: errors.New("empty camera log")}
	}
	if len(lines)%colmapGroupLines != 0 {
		return nil, &ParseError{
			Path: path,
			Err:  fmt.Errorf("%d lines is not a multiple of %d", len(lines), colmapGroupLines),
		}
	}

	cams := make(models.CameraSet, 0, len(lines)/colmapGroupLines)
	for g := 0; g < len(lines); g += colmapGroupLines {
		header := strings.Fields(lines[g])
		if len(header) == 0 {
			return nil, &ParseError{Path: path, Line: g + 1, Err: errors.New("missing camera header")}
		}

		camToWorld := mat.NewDense(4, 4, nil)
		for r := 0; r < 4; r++ {
			lineNo := g + r + 2
			fields := strings.Fields(lines[g+r+1])
			if len(fields) != 4 {
				return nil, &ParseError{
					Path: path,
					Line: lineNo,
					Err:  fmt.Errorf("expected 4 values, got %d", len(fields)),
				}
			}
			for c, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return nil, &ParseError{Path: path, Line: lineNo, Err: err}
				}
				camToWorld.Set(r, c, v)
			}
		}

		id := NormalizeID(header[0])
		var pose mat.Dense
		if err := pose.Inverse(camToWorld); err != nil {
			return nil, &DegenerateCameraError{ID: id, Reason: fmt.Sprintf("camera-to-world matrix is not invertible: %v", err)}
		}
		cams = append(cams, models.Camera{
			ID:     id,
			Source: path,
			Pose:   &pose,
		})
	}
	return cams, nil
}

// readLines returns the file's lines with trailing blank lines dropped.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// NormalizeID renders purely numeric IDs without leading zeros, so that
// "00000012" from an mvsnet filename matches "12" from a colmap header.
// Other IDs are returned unchanged.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return id
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return id
		}
	}
	if trimmed := strings.TrimLeft(id, "0"); trimmed != "" {
		return trimmed
	}
	return "0"
}
