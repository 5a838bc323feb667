package tree

import "math"

// impurityFunc computes node impurity from per-class counts and their total.
type impurityFunc func(counts []float64, total float64) float64

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / total
		sum += p * p
	}
	return 1 - sum
}

func entropy(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := c / total
			h -= p * math.Log2(p)
		}
	}
	return h
}

func criterionFunc(name string) (impurityFunc, bool) {
	switch name {
	case "gini":
		return gini, true
	case "entropy", "log_loss":
		return entropy, true
	default:
		return nil, false
	}
}
