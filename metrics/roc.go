package metrics

import (
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	_ "gonum.org/v1/plot/vg/vgimg"
	_ "gonum.org/v1/plot/vg/vgpdf"
	_ "gonum.org/v1/plot/vg/vgsvg"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// ROC is a receiver operating characteristic curve. Point k is obtained by
// predicting positive for every score >= Thresholds[k]; the first point is
// (0, 0) with an infinite threshold.
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
}

// ROCCurve computes the ROC curve with one point per distinct score.
func ROCCurve(yTrue, yScore *mat.VecDense) (*ROC, error) {
	n, err := checkPair("ROCCurve", yTrue, yScore)
	if err != nil {
		return nil, err
	}
	nPos, err := checkBinary("ROCCurve", yTrue)
	if err != nil {
		return nil, err
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		return nil, errors.NewValueError("ROCCurve", "y_true must contain both classes")
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return yScore.AtVec(order[a]) > yScore.AtVec(order[b])
	})

	roc := &ROC{
		FPR:        []float64{0},
		TPR:        []float64{0},
		Thresholds: []float64{math.Inf(1)},
	}
	tp, fp := 0, 0
	for k, i := range order {
		if yTrue.AtVec(i) == 1 {
			tp++
		} else {
			fp++
		}
		if k+1 < n && yScore.AtVec(order[k+1]) == yScore.AtVec(i) {
			continue
		}
		roc.FPR = append(roc.FPR, float64(fp)/float64(nNeg))
		roc.TPR = append(roc.TPR, float64(tp)/float64(nPos))
		roc.Thresholds = append(roc.Thresholds, yScore.AtVec(i))
	}
	return roc, nil
}

// Area integrates the curve with the trapezoidal rule. It equals AUC for the
// same inputs.
func (r *ROC) Area() float64 {
	area := 0.0
	for k := 1; k < len(r.FPR); k++ {
		area += (r.FPR[k] - r.FPR[k-1]) * (r.TPR[k] + r.TPR[k-1]) / 2
	}
	return area
}

// SavePlot renders the curve and the chance diagonal to filename. The image
// format follows the file extension and defaults to PNG. The file is replaced
// atomically.
func (r *ROC) SavePlot(filename, title string) error {
	err := model.WriteFileAtomic(filename, func(w io.Writer) error {
		return r.WritePlot(w, title, PlotFormat(filename))
	})
	if err != nil {
		return errors.NewPersistenceError("plot", filename, err)
	}
	return nil
}

// PlotFormat returns the gonum/plot format name for filename's extension.
func PlotFormat(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "png"
	}
	return ext
}

// WritePlot renders the curve and the chance diagonal to w in the given
// format ("png", "svg", "pdf", ...).
func (r *ROC) WritePlot(w io.Writer, title, format string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "False positive rate"
	p.Y.Label.Text = "True positive rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	pts := make(plotter.XYs, len(r.FPR))
	for k := range r.FPR {
		pts[k] = plotter.XY{X: r.FPR[k], Y: r.TPR[k]}
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	curve.Width = vg.Points(2)

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return err
	}
	chance.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(curve, chance, plotter.NewGrid())
	p.Legend.Add("model", curve)
	p.Legend.Add("chance", chance)
	p.Legend.Top = true
	p.Legend.Left = false

	wt, err := p.WriterTo(5*vg.Inch, 5*vg.Inch, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
