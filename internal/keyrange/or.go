package keyrange

import (
	"sort"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// GenerateOr computes the key-range covered by a set of OR-combined
// Event.ID constraints (the "covered" half) and its complement within
// [LowerBound, UpperBound] (the "complement" half, used to evaluate
// non-key constraints with OR semantics). Mirrors the conflict-collapse
// rules of the original date-based generator, restated over integers:
// two distinct "is not" values, an "is not" colliding with an "is"
// value, or an "is not" value outside the greater/lesser bracket all
// collapse the result to the full universe.
func GenerateOr(constraints []rules.Rule) ([]Interval, []Interval, error) {
	if len(constraints) == 0 {
		return []Interval{{Lo: LowerBound, Hi: UpperBound}}, nil, nil
	}
	const unsetBefore = LowerBound - 1
	const unsetAfter = UpperBound + 1

	latestBefore := unsetBefore
	earliestAfter := unsetAfter
	var isValues []int
	var notCond *int
	var notPeriods []Interval

	universe := []Interval{{Lo: LowerBound, Hi: UpperBound}}

	for _, c := range constraints {
		n, err := intValue(c)
		if err != nil {
			return nil, nil, err
		}
		if n < LowerBound || n > UpperBound {
			return nil, nil, rules.NewQueryError(rules.KindMalformed, "key-range constraint %q is outside [%d,%d]", c.Summary(), LowerBound, UpperBound)
		}

		switch c.Condition {
		case "is less than":
			if latestBefore == unsetBefore || latestBefore < n-1 {
				latestBefore = n - 1
			}
		case "is greater than":
			if earliestAfter == unsetAfter || n+1 < earliestAfter {
				earliestAfter = n + 1
			}
		case "is not":
			if notCond != nil && *notCond != n {
				return universe, nil, nil
			}
			if contains(isValues, n) {
				return universe, nil, nil
			}
			if latestBefore > n || earliestAfter < n {
				return universe, nil, nil
			}
			notPeriods = []Interval{{Lo: LowerBound, Hi: n - 1}, {Lo: n + 1, Hi: UpperBound}}
			nn := n
			notCond = &nn
		case "is":
			if notCond != nil && n == *notCond {
				return universe, nil, nil
			}
			isValues = append(isValues, n)
		default:
			return nil, nil, rules.NewQueryError(rules.KindMalformed, "key-range constraint %q has an unsupported condition", c.Summary())
		}
	}

	var covered []Interval
	if notCond != nil {
		if latestBefore > *notCond || earliestAfter < *notCond {
			covered = universe
		} else {
			covered = notPeriods
		}
	} else if latestBefore >= earliestAfter {
		covered = universe
	} else {
		covered = []Interval{{Lo: LowerBound, Hi: latestBefore}, {Lo: earliestAfter, Hi: UpperBound}}
		for _, v := range isValues {
			if latestBefore < v && v < earliestAfter {
				covered = append(covered, Interval{Lo: v, Hi: v})
			}
		}
	}

	covered = compact(covered)
	sort.Slice(covered, func(i, j int) bool { return covered[i].Lo < covered[j].Lo })

	return covered, complement(covered), nil
}

func contains(vs []int, n int) bool {
	for _, v := range vs {
		if v == n {
			return true
		}
	}
	return false
}
