// Package ensemble provides the random forest classifier used by the
// training pipeline.
package ensemble

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/core/parallel"
	"github.com/YuminosukeSato/heartml/pkg/errors"
	"github.com/YuminosukeSato/heartml/sklearn/tree"
)

var (
	_ model.Classifier      = (*RandomForestClassifier)(nil)
	_ model.ParameterGetter = (*RandomForestClassifier)(nil)
	_ model.ParameterSetter = (*RandomForestClassifier)(nil)
)

// RandomForestClassifier averages the class probabilities of decision trees
// fitted on bootstrap samples with a random subset of features per split.
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "sqrt", "log2" or "all"
	bootstrap       bool
	randomState     int64
	nJobs           int // workers for Fit, <= 0 for all CPUs

	// Fitted attributes
	classes_            []int
	nFeatures_          int
	estimators_         []*tree.DecisionTreeClassifier
	featureImportances_ []float64
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// NewRandomForestClassifier creates a forest with scikit-learn defaults:
// 100 trees, gini, max_features="sqrt", bootstrap sampling.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
		nJobs:           0,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split criterion of every tree.
func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth limits tree depth. <= 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) {
		if depth <= 0 {
			depth = -1
		}
		rf.maxDepth = depth
	}
}

// WithMinSamplesSplit sets min_samples_split of every tree.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf of every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature subset rule: "sqrt", "log2" or "all".
func WithMaxFeatures(rule string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = rule }
}

// WithBootstrap toggles bootstrap sampling of the training rows.
func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

// WithRandomState fixes the seed. A negative seed draws a random one per Fit.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of goroutines fitting trees.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

func (rf *RandomForestClassifier) featuresPerSplit(nFeatures int) (int, error) {
	var k int
	switch rf.maxFeatures {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	case "all", "":
		k = nFeatures
	default:
		return 0, errors.NewValidationError("max_features", "must be 'sqrt', 'log2' or 'all'", rf.maxFeatures)
	}
	if k < 1 {
		k = 1
	}
	return k, nil
}

// Fit trains nEstimators trees. Tree seeds are drawn in order from one
// generator before fitting starts, so the result does not depend on how the
// trees are scheduled across goroutines.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	rf.state.Reset()
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yRows, _ := y.Dims(); yRows != nSamples {
		return errors.NewDimensionError("RandomForestClassifier.Fit", nSamples, yRows, 0)
	}
	k, err := rf.featuresPerSplit(nFeatures)
	if err != nil {
		return err
	}

	classes, err := uniqueLabels(y)
	if err != nil {
		return err
	}

	seed := uint64(rf.randomState)
	if rf.randomState < 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	seeds := make([]int64, rf.nEstimators)
	for i := range seeds {
		seeds[i] = rng.Int64N(math.MaxInt32)
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	err = parallel.ForEach(rf.nEstimators, rf.nJobs, func(i int) error {
		dt := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(k),
			tree.WithRandomState(seeds[i]),
		)

		Xt, yt := X, y
		if rf.bootstrap {
			Xt, yt = bootstrapSample(X, y, seeds[i])
		}
		if err := dt.Fit(Xt, yt); err != nil {
			return errors.Wrapf(err, "fit tree %d", i)
		}
		trees[i] = dt
		return nil
	})
	if err != nil {
		return err
	}

	importances := make([]float64, nFeatures)
	for _, dt := range trees {
		floats.Add(importances, dt.GetFeatureImportances())
	}
	floats.Scale(1/float64(len(trees)), importances)

	rf.classes_ = classes
	rf.nFeatures_ = nFeatures
	rf.estimators_ = trees
	rf.featureImportances_ = importances
	rf.state.SetDimensions(nFeatures, nSamples)
	rf.state.SetFitted()
	return nil
}

// bootstrapSample draws len(X) rows with replacement. The stream differs
// from the tree's feature sampling stream even though both use seed.
func bootstrapSample(X, y mat.Matrix, seed int64) (*mat.Dense, *mat.Dense) {
	n, c := X.Dims()
	rng := rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
	Xb := mat.NewDense(n, c, nil)
	yb := mat.NewDense(n, 1, nil)
	row := make([]float64, c)
	for i := 0; i < n; i++ {
		src := rng.IntN(n)
		for j := 0; j < c; j++ {
			row[j] = X.At(src, j)
		}
		Xb.SetRow(i, row)
		yb.Set(i, 0, y.At(src, 0))
	}
	return Xb, yb
}

func uniqueLabels(y mat.Matrix) ([]int, error) {
	n, _ := y.Dims()
	seen := make(map[int]struct{})
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, errors.NewValueError("RandomForestClassifier.Fit",
				fmt.Sprintf("labels must be integers, got %v at row %d", v, i))
		}
		seen[int(v)] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, nil
}

// PredictProba averages tree probabilities in tree order. Columns follow
// Classes(); a tree that never saw a class contributes zero to it.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.state.RequireFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}

	pos := make(map[int]int, len(rf.classes_))
	for i, cl := range rf.classes_ {
		pos[cl] = i
	}

	nClasses := len(rf.classes_)
	sum := make([]float64, r*nClasses)
	for _, dt := range rf.estimators_ {
		p, err := dt.PredictProba(X)
		if err != nil {
			return nil, err
		}
		cols := dt.Classes()
		for i := 0; i < r; i++ {
			for tk, cl := range cols {
				sum[i*nClasses+pos[cl]] += p.At(i, tk)
			}
		}
	}
	floats.Scale(1/float64(len(rf.estimators_)), sum)
	return mat.NewDense(r, nClasses, sum), nil
}

// Predict returns the class with the highest averaged probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	dense := proba.(*mat.Dense)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(rf.classes_[floats.MaxIdx(dense.RawRowView(i))]))
	}
	return out, nil
}

// Score returns the mean accuracy on X and y, or 0 if prediction fails.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := pred.Dims()
	if r == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// Classes returns the sorted labels seen during Fit.
func (rf *RandomForestClassifier) Classes() []int {
	return append([]int(nil), rf.classes_...)
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// NFeatures returns the number of features seen during Fit.
func (rf *RandomForestClassifier) NFeatures() int {
	return rf.nFeatures_
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// GetFeatureImportances returns the mean of the trees' importances.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), rf.featureImportances_...)
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams sets hyperparameters by their scikit-learn names.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "n_estimators":
			rf.nEstimators, ok = value.(int)
		case "criterion":
			rf.criterion, ok = value.(string)
		case "max_depth":
			var d int
			if d, ok = value.(int); ok {
				WithMaxDepth(d)(rf)
			}
		case "min_samples_split":
			rf.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			rf.minSamplesLeaf, ok = value.(int)
		case "max_features":
			rf.maxFeatures, ok = value.(string)
		case "bootstrap":
			rf.bootstrap, ok = value.(bool)
		case "n_jobs":
			rf.nJobs, ok = value.(int)
		case "random_state":
			switch v := value.(type) {
			case int64:
				rf.randomState, ok = v, true
			case int:
				rf.randomState, ok = int64(v), true
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return nil
}
