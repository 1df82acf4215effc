package kernel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/r3e-network/dataflow-sim/internal/errors"
	"github.com/r3e-network/dataflow-sim/lib/simulation/model"
	"github.com/r3e-network/dataflow-sim/lib/simulation/token"
)

// aggregationResult is the outcome of reducing a Queue's window: the
// emitted value, the per-source contribution vector keyed by token id
// (spec §4.1's weight definitions), and the human-readable calculation
// string the activity log must reproduce bit-exact (spec §4.3).
type aggregationResult struct {
	value         float64
	contributions map[string]float64
	calculation   string
}

// aggregate reduces window per method, per spec §4.1:
//   - sum: value/total contribution, calculation "a+b+c=total"
//   - average: equal weight 1/n, calculation "avg(a, b, c)=mean"
//   - count: 1 per token, calculation "count(n)=n"
//   - first/last: 1 for the chosen token and 0 elsewhere
func aggregate(method model.AggregationMethod, window []token.Token) (aggregationResult, error) {
	nums := make([]float64, len(window))
	for i, tok := range window {
		n, ok := asFloat(tok.Value)
		if !ok {
			return aggregationResult{}, errors.New(errors.CodeEvaluation, errors.SeverityRecorded,
				fmt.Sprintf("token %q has non-numeric value, cannot aggregate", tok.ID))
		}
		nums[i] = n
	}

	contributions := make(map[string]float64, len(window))

	switch method {
	case model.AggSum:
		total := 0.0
		for _, n := range nums {
			total += n
		}
		for i, tok := range window {
			if total != 0 {
				contributions[tok.ID] = nums[i] / total
			} else {
				contributions[tok.ID] = 0
			}
		}
		return aggregationResult{value: total, contributions: contributions, calculation: calcSum(nums, total)}, nil

	case model.AggAverage:
		total := 0.0
		for _, n := range nums {
			total += n
		}
		n := float64(len(nums))
		avg := 0.0
		if n > 0 {
			avg = total / n
		}
		weight := 0.0
		if n > 0 {
			weight = 1 / n
		}
		for _, tok := range window {
			contributions[tok.ID] = weight
		}
		return aggregationResult{value: avg, contributions: contributions, calculation: calcAverage(nums, avg)}, nil

	case model.AggCount:
		for _, tok := range window {
			contributions[tok.ID] = 1
		}
		n := len(window)
		return aggregationResult{value: float64(n), contributions: contributions, calculation: fmt.Sprintf("count(%d)=%d", n, n)}, nil

	case model.AggFirst:
		for i, tok := range window {
			if i == 0 {
				contributions[tok.ID] = 1
			} else {
				contributions[tok.ID] = 0
			}
		}
		return aggregationResult{value: nums[0], contributions: contributions, calculation: fmt.Sprintf("first(%s)", formatNum(nums[0]))}, nil

	case model.AggLast:
		last := len(window) - 1
		for i, tok := range window {
			if i == last {
				contributions[tok.ID] = 1
			} else {
				contributions[tok.ID] = 0
			}
		}
		return aggregationResult{value: nums[last], contributions: contributions, calculation: fmt.Sprintf("last(%s)", formatNum(nums[last]))}, nil

	default:
		return aggregationResult{}, errors.New(errors.CodeEvaluation, errors.SeverityRecorded, fmt.Sprintf("unknown aggregation method %q", method))
	}
}

func calcSum(nums []float64, total float64) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = formatNum(n)
	}
	return fmt.Sprintf("%s=%s", strings.Join(parts, "+"), formatNum(total))
}

func calcAverage(nums []float64, avg float64) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = formatNum(n)
	}
	return fmt.Sprintf("avg(%s)=%s", strings.Join(parts, ", "), formatNum(avg))
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}
