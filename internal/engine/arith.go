package engine

import "math"

// Arithmetic operators shared by derived aggregations, transform
// formulas, and composite summary formulas.
const (
	OpAdd = "+"
	OpSub = "-"
	OpMul = "*"
	OpDiv = "/"
)

func isArithOp(op string) bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

func nan() float64 { return math.NaN() }

// applyArith computes a op b under the engine-wide division policy:
// 0/0 yields 0 and n/0 yields NaN, never an error.
func applyArith(op string, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		if b == 0 {
			if a == 0 {
				return 0
			}
			return nan()
		}
		return a / b
	}
	return nan()
}

// Base statistic methods shared by aggregations and summary formulas.
const (
	MethodSum   = "sum"
	MethodMean  = "mean"
	MethodCount = "count"
	MethodMax   = "max"
	MethodMin   = "min"
)

func isStatMethod(m string) bool {
	switch m {
	case MethodSum, MethodMean, MethodCount, MethodMax, MethodMin:
		return true
	}
	return false
}

// computeStat evaluates a base statistic over the valid numeric values
// of a group. An empty group yields sum=0 and count=0; mean, max, and
// min have no defined value and yield NaN.
func computeStat(method string, values []float64) float64 {
	switch method {
	case MethodCount:
		return float64(len(values))
	case MethodSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum
	case MethodMean:
		if len(values) == 0 {
			return nan()
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case MethodMax:
		if len(values) == 0 {
			return nan()
		}
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case MethodMin:
		if len(values) == 0 {
			return nan()
		}
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	}
	return nan()
}

// quantile computes the p-th percentile (0..100) of sorted values with
// linear interpolation between closest ranks.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return nan()
	}
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
