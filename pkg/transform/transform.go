// Package transform reads and writes 4x4 transform matrices as plain text,
// one row per line.
package transform

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// IdentityFileName is written next to every transform produced by Write.
const IdentityFileName = "identity_trans.txt"

// Size is the row and column count of a similarity transform.
const Size = 4

// FormatError reports a malformed transform file.
type FormatError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *FormatError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("transform %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("transform %s: %s", loc, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Identity returns a new 4x4 identity matrix.
func Identity() *mat.Dense {
	m := mat.NewDense(Size, Size, nil)
	for i := 0; i < Size; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Read loads a 4x4 transform from path.
func Read(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transform file: %w", err)
	}
	defer f.Close()

	m, err := ReadMatrix(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	if r, c := m.Dims(); r != Size || c != Size {
		return nil, &FormatError{Path: path, Msg: fmt.Sprintf("expected %dx%d matrix, got %dx%d", Size, Size, r, c)}
	}
	return m, nil
}

// ReadMatrix parses whitespace separated rows. Blank lines are skipped and
// every row must have the same number of columns.
func ReadMatrix(r io.Reader) (*mat.Dense, error) {
	var (
		data []float64
		rows int
		cols int
	)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if rows == 0 {
			cols = len(fields)
		} else if len(fields) != cols {
			return nil, &FormatError{Line: lineNo, Msg: fmt.Sprintf("expected %d columns, got %d", cols, len(fields))}
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &FormatError{Line: lineNo, Msg: "non-numeric value", Err: err}
			}
			data = append(data, v)
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transform: %w", err)
	}
	if rows == 0 {
		return nil, &FormatError{Msg: "no matrix rows"}
	}
	return mat.NewDense(rows, cols, data), nil
}

// WriteMatrix writes m one row per line, each value followed by a space.
func WriteMatrix(w io.Writer, m mat.Matrix) error {
	bw := bufio.NewWriter(w)
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			bw.WriteString(strconv.FormatFloat(m.At(i, j), 'g', -1, 64))
			bw.WriteByte(' ')
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Write stores m at path and an identity transform named IdentityFileName in
// the same directory. path itself may not be named IdentityFileName.
func Write(m mat.Matrix, path string) error {
	if IdentityPath(path) == filepath.Clean(path) {
		return fmt.Errorf("output %s would be overwritten by the identity transform", path)
	}
	if err := writeFile(m, path); err != nil {
		return err
	}
	return writeFile(Identity(), IdentityPath(path))
}

// IdentityPath returns where Write puts the identity transform for path.
func IdentityPath(path string) string {
	return filepath.Join(filepath.Dir(path), IdentityFileName)
}

func writeFile(m mat.Matrix, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating transform file: %w", err)
	}
	if err := WriteMatrix(f, m); err != nil {
		f.Close()
		return fmt.Errorf("error writing transform file: %w", err)
	}
	return f.Close()
}
