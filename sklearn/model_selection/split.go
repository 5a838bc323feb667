// Package model_selection splits datasets into training and holdout parts.
package model_selection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// Split holds sorted row indices of each partition.
type Split struct {
	TrainIndices []int
	TestIndices  []int
}

// StratifiedTrainTestSplit partitions rows so that every class keeps its
// share in both parts. The holdout receives ceil(n*testSize) rows allocated
// to classes by largest remainder. Rows are shuffled per class with a PCG
// seeded by seed, so the same inputs always give the same split.
func StratifiedTrainTestSplit(y mat.Matrix, testSize float64, seed uint64) (Split, error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return Split{}, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	n, _ := y.Dims()
	if n < 2 {
		return Split{}, errors.NewValueError("StratifiedTrainTestSplit", fmt.Sprintf("need at least 2 samples, got %d", n))
	}

	byClass := make(map[float64][]int)
	for i := 0; i < n; i++ {
		label := y.At(i, 0)
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]float64, 0, len(byClass))
	for label, idx := range byClass {
		if len(idx) < 2 {
			return Split{}, errors.NewValueError("StratifiedTrainTestSplit",
				fmt.Sprintf("class %v has only %d member, need at least 2", label, len(idx)))
		}
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	nTest := int(math.Ceil(float64(n)*testSize - 1e-9))
	if nTest >= n {
		return Split{}, errors.NewValueError("StratifiedTrainTestSplit",
			fmt.Sprintf("test_size=%v leaves no training rows out of %d", testSize, n))
	}

	counts := make([]int, len(labels))
	for k, label := range labels {
		counts[k] = len(byClass[label])
	}
	alloc := allocate(counts, n, nTest)

	r := rand.New(rand.NewPCG(seed, seed))
	var split Split
	for k, label := range labels {
		idx := byClass[label]
		r.Shuffle(len(idx), func(i, j int) {
			idx[i], idx[j] = idx[j], idx[i]
		})
		split.TestIndices = append(split.TestIndices, idx[:alloc[k]]...)
		split.TrainIndices = append(split.TrainIndices, idx[alloc[k]:]...)
	}
	sort.Ints(split.TrainIndices)
	sort.Ints(split.TestIndices)
	return split, nil
}

// allocate distributes total slots over classes proportionally to counts:
// floor of the exact share first, then one extra slot per class in order of
// largest fractional part (larger class first, then lower index, on ties).
// No class gives away all of its rows.
func allocate(counts []int, n, total int) []int {
	alloc := make([]int, len(counts))
	frac := make([]float64, len(counts))
	used := 0
	for k, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		alloc[k] = int(math.Floor(exact))
		if alloc[k] >= c {
			alloc[k] = c - 1
		}
		frac[k] = exact - float64(alloc[k])
		used += alloc[k]
	}

	order := make([]int, len(counts))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if frac[ka] != frac[kb] {
			return frac[ka] > frac[kb]
		}
		return counts[ka] > counts[kb]
	})

	for used < total {
		progressed := false
		for _, k := range order {
			if used == total {
				break
			}
			if alloc[k] < counts[k]-1 {
				alloc[k]++
				used++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc
}
