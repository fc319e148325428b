// Package report writes camera centers and alignment residuals as CSV.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/jszwec/csvutil"

	"mvsalign/internal/models"
	"mvsalign/pkg/alignment"
)

// ResidualRow is one camera of an alignment residual report.
type ResidualRow struct {
	ID       string  `csv:"camera_id"`
	SourceX  float64 `csv:"src_x"`
	SourceY  float64 `csv:"src_y"`
	SourceZ  float64 `csv:"src_z"`
	TargetX  float64 `csv:"dst_x"`
	TargetY  float64 `csv:"dst_y"`
	TargetZ  float64 `csv:"dst_z"`
	AlignedX float64 `csv:"aligned_x"`
	AlignedY float64 `csv:"aligned_y"`
	AlignedZ float64 `csv:"aligned_z"`
	Residual float64 `csv:"residual"`
}

// CenterRow is one camera of a centers dump.
type CenterRow struct {
	ID     string  `csv:"camera_id"`
	Source string  `csv:"source"`
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Z      float64 `csv:"z"`
}

// Residuals converts alignment pairs into report rows.
func Residuals(pairs []alignment.Pair) []ResidualRow {
	rows := make([]ResidualRow, len(pairs))
	for i, p := range pairs {
		rows[i] = ResidualRow{
			ID:       p.ID,
			SourceX:  p.Source.X,
			SourceY:  p.Source.Y,
			SourceZ:  p.Source.Z,
			TargetX:  p.Target.X,
			TargetY:  p.Target.Y,
			TargetZ:  p.Target.Z,
			AlignedX: p.Aligned.X,
			AlignedY: p.Aligned.Y,
			AlignedZ: p.Aligned.Z,
			Residual: p.Residual,
		}
	}
	return rows
}

// Centers pairs each camera with its center. The slices must have equal length.
func Centers(set models.CameraSet, centers []r3.Vector) ([]CenterRow, error) {
	if len(set) != len(centers) {
		return nil, fmt.Errorf("%d cameras but %d centers", len(set), len(centers))
	}
	rows := make([]CenterRow, len(set))
	for i, cam := range set {
		rows[i] = CenterRow{
			ID:     cam.ID,
			Source: cam.Source,
			X:      centers[i].X,
			Y:      centers[i].Y,
			Z:      centers[i].Z,
		}
	}
	return rows, nil
}

// Write marshals rows, a slice of ResidualRow or CenterRow, as CSV with a header.
func Write(w io.Writer, rows interface{}) error {
	b, err := csvutil.Marshal(rows)
	if err != nil {
		return fmt.Errorf("error encoding report: %w", err)
	}
	_, err = w.Write(b)
	return err
}

// WriteFile writes rows to path.
func WriteFile(path string, rows interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating report file: %w", err)
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
