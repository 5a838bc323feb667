// Package tree implements a CART decision tree classifier. It is used on its
// own and as the base learner of the random forest in sklearn/ensemble.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/core/model"
	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// node is one entry of the flattened tree. Leaves have Feature == -1.
type node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64 // class probabilities, aligned with classes_
	NSamples  int
	Impurity  float64
	Depth     int
}

var (
	_ model.Classifier      = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter = (*DecisionTreeClassifier)(nil)
)

// DecisionTreeClassifier is a CART classifier compatible with scikit-learn's
// DecisionTreeClassifier. Splits are binary on "feature <= threshold".
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // -1 for unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int   // features examined per split, 0 for all
	randomState     int64 // -1 for a random seed

	// Fitted attributes
	classes_            []int
	nClasses_           int
	nFeatures_          int
	nodes               []node
	featureImportances_ []float64
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a classifier with scikit-learn defaults:
// gini criterion, unlimited depth, min_samples_split=2, min_samples_leaf=1 and
// every feature considered at each split.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     0,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the split quality measure ("gini" or "entropy").
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth limits the depth of the tree. A value <= 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		if depth <= 0 {
			depth = -1
		}
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum number of samples in each child.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures sets how many features are examined when looking for the
// best split. 0 examines all of them.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = n
	}
}

// WithRandomState seeds the feature sampling. A negative seed draws a random one.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

func (dt *DecisionTreeClassifier) validate() error {
	if _, ok := criterionFunc(dt.criterion); !ok {
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	if dt.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be >= 0", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from X (n_samples × n_features) and y (n_samples × 1
// integer labels).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	dt.state.Reset()
	if err := dt.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yRows, yCols := y.Dims()
	if yRows != nSamples {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, nSamples, nFeatures); err != nil {
		return err
	}

	classes, encoded, err := encodeLabels(y)
	if err != nil {
		return err
	}

	impurity, _ := criterionFunc(dt.criterion)
	b := &builder{
		X:           X,
		y:           encoded,
		nClasses:    len(classes),
		nFeatures:   nFeatures,
		impurity:    impurity,
		maxDepth:    dt.maxDepth,
		minSplit:    dt.minSamplesSplit,
		minLeaf:     dt.minSamplesLeaf,
		maxFeatures: dt.maxFeatures,
		importances: make([]float64, nFeatures),
	}
	if b.maxFeatures == 0 || b.maxFeatures > nFeatures {
		b.maxFeatures = nFeatures
	}
	if b.maxFeatures < nFeatures {
		seed := uint64(dt.randomState)
		if dt.randomState < 0 {
			seed = rand.Uint64()
		}
		b.rng = rand.New(rand.NewPCG(seed, seed))
	}

	idx := make([]int, nSamples)
	for i := range idx {
		idx[i] = i
	}
	b.build(idx, 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for j := range b.importances {
			b.importances[j] /= total
		}
	}

	dt.classes_ = classes
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = nFeatures
	dt.nodes = b.nodes
	dt.featureImportances_ = b.importances
	dt.state.SetDimensions(nFeatures, nSamples)
	dt.state.SetFitted()
	return nil
}

// encodeLabels maps integer labels to 0..k-1 in sorted label order.
func encodeLabels(y mat.Matrix) ([]int, []int, error) {
	n, _ := y.Dims()
	seen := make(map[int]struct{})
	raw := make([]int, n)
	for i := 0; i < n; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, nil, errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("labels must be integers, got %v at row %d", v, i))
		}
		raw[i] = int(v)
		seen[raw[i]] = struct{}{}
	}

	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	pos := make(map[int]int, len(classes))
	for i, c := range classes {
		pos[c] = i
	}
	encoded := make([]int, n)
	for i, v := range raw {
		encoded[i] = pos[v]
	}
	return classes, encoded, nil
}

type builder struct {
	X           mat.Matrix
	y           []int
	nClasses    int
	nFeatures   int
	impurity    impurityFunc
	maxDepth    int
	minSplit    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	nodes       []node
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	left      []int
	right     []int
	impLeft   float64
	impRight  float64
	score     float64 // weighted child impurity
}

func (b *builder) counts(idx []int) []float64 {
	c := make([]float64, b.nClasses)
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

// build appends the subtree for idx and returns the index of its root.
func (b *builder) build(idx []int, depth int) int {
	counts := b.counts(idx)
	n := float64(len(idx))
	imp := b.impurity(counts, n)

	value := make([]float64, b.nClasses)
	for k, c := range counts {
		value[k] = c / n
	}

	id := len(b.nodes)
	b.nodes = append(b.nodes, node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Value:    value,
		NSamples: len(idx),
		Impurity: imp,
		Depth:    depth,
	})

	if imp <= 0 ||
		(b.maxDepth >= 0 && depth >= b.maxDepth) ||
		len(idx) < b.minSplit ||
		len(idx) < 2*b.minLeaf {
		return id
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	nl, nr := float64(len(best.left)), float64(len(best.right))
	b.importances[best.feature] += n*imp - nl*best.impLeft - nr*best.impRight

	left := b.build(best.left, depth+1)
	right := b.build(best.right, depth+1)

	nd := &b.nodes[id]
	nd.Feature = best.feature
	nd.Threshold = best.threshold
	nd.Left = left
	nd.Right = right
	return id
}

// bestSplit scans candidate features in random order (natural order when all
// features are examined) and stops after maxFeatures non-constant features.
// The first strictly better split wins ties.
func (b *builder) bestSplit(idx []int) (split, bool) {
	order := make([]int, b.nFeatures)
	for j := range order {
		order[j] = j
	}
	if b.rng != nil {
		b.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	n := len(idx)
	sorted := make([]int, n)
	vals := make([]float64, n)
	best := split{score: math.Inf(1)}
	found := false
	visited := 0

	for _, f := range order {
		if visited >= b.maxFeatures {
			break
		}
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.X.At(sorted[a], f) < b.X.At(sorted[c], f)
		})
		for k, i := range sorted {
			vals[k] = b.X.At(i, f)
		}
		if vals[0] == vals[n-1] {
			continue
		}
		visited++

		left := make([]float64, b.nClasses)
		right := b.counts(sorted)
		for k := 0; k < n-1; k++ {
			cls := b.y[sorted[k]]
			left[cls]++
			right[cls]--

			if vals[k] == vals[k+1] {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < b.minLeaf || nr < b.minLeaf {
				continue
			}

			impL := b.impurity(left, float64(nl))
			impR := b.impurity(right, float64(nr))
			score := (float64(nl)*impL + float64(nr)*impR) / float64(n)
			if score < best.score {
				threshold := vals[k] + (vals[k+1]-vals[k])/2
				if threshold >= vals[k+1] {
					threshold = vals[k]
				}
				best = split{
					feature:   f,
					threshold: threshold,
					impLeft:   impL,
					impRight:  impR,
					score:     score,
					left:      append([]int(nil), sorted[:nl]...),
					right:     append([]int(nil), sorted[nl:]...),
				}
				found = true
			}
		}
	}
	return best, found
}

// leaf walks the tree for one sample and returns its leaf.
func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *node {
	nd := &dt.nodes[0]
	for nd.Feature >= 0 {
		if X.At(i, nd.Feature) <= nd.Threshold {
			nd = &dt.nodes[nd.Left]
		} else {
			nd = &dt.nodes[nd.Right]
		}
	}
	return nd
}

func (dt *DecisionTreeClassifier) checkPredict(X mat.Matrix, method string) error {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return err
	}
	_, c := X.Dims()
	return dt.state.RequireFeatures("DecisionTreeClassifier."+method, c)
}

// PredictProba returns class probabilities (n_samples × n_classes), columns
// ordered as Classes().
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "PredictProba"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, dt.nClasses_, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, dt.leaf(X, i).Value)
	}
	return out, nil
}

// Predict returns the most probable label of every row as an n×1 matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict(X, "Predict"); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		v := dt.leaf(X, i).Value
		best := 0
		for k := 1; k < len(v); k++ {
			if v[k] > v[best] {
				best = k
			}
		}
		out.Set(i, 0, float64(dt.classes_[best]))
	}
	return out, nil
}

// Score returns the mean accuracy on X and y, or 0 if prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
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
func (dt *DecisionTreeClassifier) Classes() []int {
	return append([]int(nil), dt.classes_...)
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// GetFeatureImportances returns the normalized total impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the deepest leaf.
func (dt *DecisionTreeClassifier) GetDepth() int {
	depth := 0
	for _, nd := range dt.nodes {
		if nd.Depth > depth {
			depth = nd.Depth
		}
	}
	return depth
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for _, nd := range dt.nodes {
		if nd.Feature < 0 {
			n++
		}
	}
	return n
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams sets hyperparameters by their scikit-learn names.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			s, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = s
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				WithMaxDepth(v)(dt)
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			case "max_features":
				dt.maxFeatures = v
			}
		case "random_state":
			switch v := value.(type) {
			case int64:
				dt.randomState = v
			case int:
				dt.randomState = int64(v)
			default:
				return errors.NewValidationError(key, "must be an integer", value)
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validate()
}
