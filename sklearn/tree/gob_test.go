package tree

import (
	"bytes"
	"encoding/gob"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestDecisionTreeClassifier_GobRoundTrip(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		2, 2,
		2, 3,
		3, 2,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 1, 1, 1, 0})

	dt := NewDecisionTreeClassifier(WithMaxDepth(4), WithMaxFeatures(1), WithRandomState(7))
	if err := dt.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dt); err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored := &DecisionTreeClassifier{}
	if err := gob.NewDecoder(&buf).Decode(restored); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want, _ := dt.PredictProba(X)
	got, err := restored.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba() after decode error = %v", err)
	}
	if !mat.Equal(want, got) {
		t.Error("restored tree predicts different probabilities")
	}
	if restored.GetNLeaves() != dt.GetNLeaves() || restored.GetDepth() != dt.GetDepth() {
		t.Error("restored tree has a different shape")
	}
	if restored.GetParams()["max_features"].(int) != 1 {
		t.Error("hyperparameters were not restored")
	}
}

func TestDecisionTreeClassifier_MaxFeaturesIsSeeded(t *testing.T) {
	X := mat.NewDense(12, 4, nil)
	y := mat.NewDense(12, 1, nil)
	for i := 0; i < 12; i++ {
		X.Set(i, 0, float64(i%3))
		X.Set(i, 1, float64(i%5))
		X.Set(i, 2, float64(i))
		X.Set(i, 3, float64((i*7)%11))
		y.Set(i, 0, float64(i%2))
	}

	fit := func() mat.Matrix {
		dt := NewDecisionTreeClassifier(WithMaxFeatures(2), WithRandomState(42))
		if err := dt.Fit(X, y); err != nil {
			t.Fatalf("Fit() error = %v", err)
		}
		p, err := dt.PredictProba(X)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	if !mat.Equal(fit(), fit()) {
		t.Error("same random_state should build the same tree")
	}
}

func TestDecisionTreeClassifier_InvalidInput(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})

	if err := NewDecisionTreeClassifier().Fit(X, mat.NewDense(2, 1, []float64{0, 0.5})); err == nil {
		t.Error("expected error for non-integer labels")
	}
	if err := NewDecisionTreeClassifier().Fit(X, mat.NewDense(3, 1, nil)); err == nil {
		t.Error("expected error for mismatched y length")
	}
	if err := NewDecisionTreeClassifier(WithCriterion("mse")).Fit(X, mat.NewDense(2, 1, nil)); err == nil {
		t.Error("expected error for unknown criterion")
	}

	dt := NewDecisionTreeClassifier()
	if err := dt.Fit(X, mat.NewDense(2, 1, []float64{0, 1})); err != nil {
		t.Fatal(err)
	}
	if _, err := dt.Predict(mat.NewDense(1, 2, nil)); err == nil {
		t.Error("expected error for wrong feature count")
	}
	if err := dt.SetParams(map[string]interface{}{"splitter": "best"}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}
