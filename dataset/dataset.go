// Package dataset turns raw heart disease rows into a clean numeric table:
// unknown markers become missing values, missing values are filled with the
// column median and the raw severity code is reduced to a binary label.
package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/preprocessing"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/schema"
)

// UnknownMarker is the placeholder the source data uses for an unrecorded value.
const UnknownMarker = "?"

// Table is a prepared dataset. X has no NaN and Y holds only 0 and 1.
type Table struct {
	X       *mat.Dense    // n × 13 features in schema order
	Y       *mat.VecDense // binary labels
	Columns []string      // feature names, same order as X
	Medians []float64     // fill value used per column
	Missing []int         // number of imputed cells per column

	TargetMedian  float64 // fill value of the raw target code
	TargetMissing int     // number of rows whose target was imputed
}

// Rows returns the number of samples.
func (t *Table) Rows() int {
	r, _ := t.X.Dims()
	return r
}

// Cols returns the number of features.
func (t *Table) Cols() int {
	_, c := t.X.Dims()
	return c
}

// Positives returns the number of rows labelled 1.
func (t *Table) Positives() int {
	n := 0
	for i := 0; i < t.Y.Len(); i++ {
		if t.Y.AtVec(i) == 1 {
			n++
		}
	}
	return n
}

// Prepare validates and cleans raw rows of 13 feature cells followed by the
// raw target code. Cells that hold UnknownMarker or do not parse as a number
// are imputed with the column median over all rows; the target column is
// imputed the same way before the label is derived.
func Prepare(rows [][]string) (*Table, error) {
	s := schema.Heart
	if len(rows) == 0 {
		return nil, errors.NewDataFormatError(-1, "", "no data rows")
	}

	n, width := len(rows), s.RawWidth()
	nf := s.Len()
	raw := mat.NewDense(n, width, nil)
	missing := make([]int, width)

	for i, row := range rows {
		if len(row) != width {
			return nil, errors.NewDataFormatError(i, "",
				fmt.Sprintf("expected %d columns, got %d", width, len(row)))
		}
		for j := 0; j < width; j++ {
			v, ok := parseCell(row[j])
			if !ok {
				missing[j]++
			}
			raw.Set(i, j, v)
		}
	}

	imp := preprocessing.NewSimpleImputer()
	if err := imp.FitNamed(raw, append(s.Names(), s.Target)); err != nil {
		return nil, err
	}
	out, err := imp.Transform(raw)
	if err != nil {
		return nil, err
	}
	filled := out.(*mat.Dense)

	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		y.SetVec(i, schema.DeriveLabel(filled.At(i, nf)))
	}

	return &Table{
		X:             mat.DenseCopyOf(filled.Slice(0, n, 0, nf)),
		Y:             y,
		Columns:       s.Names(),
		Medians:       imp.Statistics[:nf],
		Missing:       missing[:nf],
		TargetMedian:  imp.Statistics[nf],
		TargetMissing: missing[nf],
	}, nil
}

// parseCell returns NaN and false for the unknown marker and for text that
// does not parse as a finite number.
func parseCell(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == UnknownMarker {
		return math.NaN(), false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return math.NaN(), false
	}
	return v, true
}

// ReadCSV reads all records of a headerless or headed CSV file. A first
// record whose first cell is "age" is treated as a header and dropped.
// Row widths are not checked here; Prepare reports them with the row index.
func ReadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewPersistenceError("read", path, err)
	}
	defer f.Close()

	rows, err := readRecords(f)
	if err != nil {
		return nil, errors.NewPersistenceError("read", path, err)
	}
	return rows, nil
}

func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	if len(rows) > 0 && len(rows[0]) > 0 && strings.TrimSpace(rows[0][0]) == schema.Heart.Fields[0].Name {
		rows = rows[1:]
	}
	return rows, nil
}

// LoadAndPrepare reads path and prepares its rows.
func LoadAndPrepare(path string) (*Table, error) {
	rows, err := ReadCSV(path)
	if err != nil {
		return nil, err
	}
	return Prepare(rows)
}

// Subset returns the rows of X and y at idx, in idx order.
func Subset(X mat.Matrix, y mat.Vector, idx []int) (*mat.Dense, *mat.VecDense) {
	_, c := X.Dims()
	xs := mat.NewDense(len(idx), c, nil)
	ys := mat.NewVecDense(len(idx), nil)
	for k, i := range idx {
		for j := 0; j < c; j++ {
			xs.Set(k, j, X.At(i, j))
		}
		ys.SetVec(k, y.AtVec(i))
	}
	return xs, ys
}
