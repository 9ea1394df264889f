package harmonise

import (
	"fmt"

	"github.com/create-to-solve/jtis/internal/model"
)

// accumulator folds the values feeding one (LAD, year, indicator) cell.
// Which fold applies is a property of the indicator, declared in the schema:
// summing population is right, summing a deprivation rank is meaningless.
type accumulator interface {
	add(value, weight float64)
	result() (float64, bool)
}

type sumAcc struct {
	total float64
	seen  bool
}

func (a *sumAcc) add(v, _ float64) { a.total += v; a.seen = true }
func (a *sumAcc) result() (float64, bool) {
	return a.total, a.seen
}

type weightedMeanAcc struct {
	weighted float64
	weights  float64
}

func (a *weightedMeanAcc) add(v, w float64) {
	if w <= 0 {
		// No usable weight for this small area; count it as one unit so the
		// row still participates rather than silently vanishing.
		w = 1
	}
	a.weighted += v * w
	a.weights += w
}

func (a *weightedMeanAcc) result() (float64, bool) {
	if a.weights == 0 {
		return 0, false
	}
	return a.weighted / a.weights, true
}

type meanAcc struct {
	total float64
	count int
}

func (a *meanAcc) add(v, _ float64) { a.total += v; a.count++ }
func (a *meanAcc) result() (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	return a.total / float64(a.count), true
}

type firstAcc struct {
	value float64
	seen  bool
}

func (a *firstAcc) add(v, _ float64) {
	if !a.seen {
		a.value = v
		a.seen = true
	}
}

func (a *firstAcc) result() (float64, bool) {
	return a.value, a.seen
}

// newAccumulator is the strategy table keyed by aggregation method.
func newAccumulator(method model.AggregationMethod) (accumulator, error) {
	switch method {
	case model.AggSum:
		return &sumAcc{}, nil
	case model.AggWeightedMean:
		return &weightedMeanAcc{}, nil
	case model.AggMean:
		return &meanAcc{}, nil
	case model.AggFirst:
		return &firstAcc{}, nil
	default:
		return nil, fmt.Errorf("unknown aggregation method %q", method)
	}
}
