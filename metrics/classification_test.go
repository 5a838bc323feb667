package metrics

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

func vec(vals ...float64) *mat.VecDense {
	return mat.NewVecDense(len(vals), vals)
}

func TestAUC(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yScore  *mat.VecDense
		want    float64
		wantErr bool
	}{
		{name: "perfect ranking", yTrue: vec(0, 0, 1, 1), yScore: vec(0.1, 0.2, 0.8, 0.9), want: 1},
		{name: "inverted ranking", yTrue: vec(0, 0, 1, 1), yScore: vec(0.9, 0.8, 0.2, 0.1), want: 0},
		{name: "constant scores", yTrue: vec(0, 1, 0, 1), yScore: vec(0.5, 0.5, 0.5, 0.5), want: 0.5},
		{name: "one discordant pair", yTrue: vec(0, 0, 1, 1), yScore: vec(0.1, 0.4, 0.35, 0.8), want: 0.75},
		{name: "tie across classes counts half", yTrue: vec(1, 0, 1, 0, 1), yScore: vec(0.9, 0.3, 0.6, 0.6, 0.2), want: 3.5 / 6},
		{name: "single class", yTrue: vec(1, 1, 1), yScore: vec(0.2, 0.5, 0.9), want: 0.5},
		{name: "label outside 0/1", yTrue: vec(0, 2), yScore: vec(0.1, 0.9), wantErr: true},
		{name: "length mismatch", yTrue: vec(0, 1, 1), yScore: vec(0.1, 0.9), wantErr: true},
		{name: "empty", yTrue: &mat.VecDense{}, yScore: &mat.VecDense{}, wantErr: true},
		{name: "nil", yTrue: nil, yScore: vec(0.5), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AUC(tt.yTrue, tt.yScore)
			if tt.wantErr {
				if err == nil {
					t.Errorf("AUC() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("AUC() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("AUC() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUCMatrix(t *testing.T) {
	yTrue := mat.NewDense(4, 1, []float64{0, 1, 0, 1})
	// Only the first column is scored.
	proba := mat.NewDense(4, 2, []float64{
		0.2, 0.9,
		0.7, 0.1,
		0.4, 0.8,
		0.6, 0.3,
	})
	got, err := AUCMatrix(yTrue, proba)
	if err != nil {
		t.Fatalf("AUCMatrix() error = %v", err)
	}
	if got != 1 {
		t.Errorf("AUCMatrix() = %v, want 1", got)
	}

	if _, err := AUCMatrix(nil, proba); err == nil {
		t.Error("AUCMatrix(nil) expected error")
	}
	if _, err := AUCMatrix(yTrue, mat.NewDense(3, 1, nil)); err == nil {
		t.Error("AUCMatrix() with mismatched rows expected error")
	}
	var de *errors.DimensionError
	if _, err := AUCMatrix(yTrue, mat.NewDense(2, 1, nil)); !errors.As(err, &de) {
		t.Errorf("AUCMatrix() error = %v, want DimensionError", err)
	}
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   *mat.VecDense
		yProba  *mat.VecDense
		want    float64
		tol     float64
		wantErr bool
	}{
		{name: "confident and right", yTrue: vec(0, 1), yProba: vec(0, 1), want: 0, tol: 1e-9},
		{name: "moderate", yTrue: vec(1, 0), yProba: vec(0.8, 0.3), want: (-math.Log(0.8) - math.Log(0.7)) / 2, tol: 1e-12},
		{name: "confident and wrong is clipped", yTrue: vec(1), yProba: vec(0), want: -math.Log(1e-15), tol: 1e-6},
		{name: "coin flip", yTrue: vec(0, 1, 1, 0), yProba: vec(0.5, 0.5, 0.5, 0.5), want: math.Ln2, tol: 1e-12},
		{name: "bad label", yTrue: vec(0, 3), yProba: vec(0.5, 0.5), wantErr: true},
		{name: "empty", yTrue: &mat.VecDense{}, yProba: &mat.VecDense{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(tt.yTrue, tt.yProba)
			if tt.wantErr {
				if err == nil {
					t.Errorf("BinaryLogLoss() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("BinaryLogLoss() error = %v", err)
			}
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("BinaryLogLoss() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccuracyAndError(t *testing.T) {
	yTrue := vec(1, 0, 1, 1, 0)
	yPred := vec(1, 1, 1, 0, 0)

	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		t.Fatalf("Accuracy() error = %v", err)
	}
	if math.Abs(acc-0.6) > 1e-12 {
		t.Errorf("Accuracy() = %v, want 0.6", acc)
	}

	e, err := ClassificationError(yTrue, yPred)
	if err != nil {
		t.Fatalf("ClassificationError() error = %v", err)
	}
	if math.Abs(e-0.4) > 1e-12 {
		t.Errorf("ClassificationError() = %v, want 0.4", e)
	}

	if _, err := Accuracy(yTrue, vec(1, 0)); err == nil {
		t.Error("Accuracy() with mismatched lengths expected error")
	}
	if _, err := ClassificationError(&mat.VecDense{}, &mat.VecDense{}); err == nil {
		t.Error("ClassificationError() on empty input expected error")
	}
}

// BenchmarkAUC scores a holdout partition the size of the heart test split.
func BenchmarkAUC(b *testing.B) {
	rng := rand.New(rand.NewPCG(1, 1))
	const n = 61
	yTrue := mat.NewVecDense(n, nil)
	yScore := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		yTrue.SetVec(i, float64(i%2))
		yScore.SetVec(i, rng.Float64())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = AUC(yTrue, yScore)
	}
}
