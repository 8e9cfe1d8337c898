package keyrange

import "github.com/douglaslinsmeyer/carol-query-engine/internal/rules"

// GenerateAnd computes the key-range covered by a set of AND-combined
// Event.ID constraints, starting from the full universe and narrowing or
// splitting it as each constraint is applied in order. An "is n"
// constraint discards every interval accumulated so far in favor of the
// single point [n,n] — equality dominates, an intentional behavior
// inherited from the source client and preserved here rather than
// "fixed".
func GenerateAnd(constraints []rules.Rule) ([]Interval, error) {
	intervals := []Interval{{Lo: LowerBound, Hi: UpperBound}}

	for _, c := range constraints {
		n, err := intValue(c)
		if err != nil {
			return nil, err
		}

		switch c.Condition {
		case "is greater than":
			intervals = applyGreaterThan(intervals, n)
		case "is less than":
			intervals = applyLessThan(intervals, n)
		case "is not":
			intervals = applyNot(intervals, n)
		case "is":
			intervals = []Interval{{Lo: n, Hi: n}}
		default:
			return nil, rules.NewQueryError(rules.KindMalformed, "key-range constraint %q has an unsupported condition", c.Summary())
		}
	}

	return compact(intervals), nil
}

func applyGreaterThan(intervals []Interval, n int) []Interval {
	var out []Interval
	for _, iv := range intervals {
		switch {
		case iv.Lo <= n && n < iv.Hi:
			iv.Lo = n + 1
		case iv.Hi < n:
			continue
		}
		out = append(out, iv)
	}
	return out
}

func applyLessThan(intervals []Interval, n int) []Interval {
	var out []Interval
	for _, iv := range intervals {
		switch {
		case iv.Lo < n && n <= iv.Hi:
			iv.Hi = n - 1
		case iv.Lo > n+1:
			continue
		}
		out = append(out, iv)
	}
	return out
}

func applyNot(intervals []Interval, n int) []Interval {
	var out []Interval
	for _, iv := range intervals {
		switch {
		case iv.Lo == n:
			iv.Lo = n + 1
			out = append(out, iv)
		case iv.Hi == n:
			iv.Hi = n - 1
			out = append(out, iv)
		case iv.Lo < n && n < iv.Hi:
			out = append(out, Interval{Lo: iv.Lo, Hi: n - 1}, Interval{Lo: n + 1, Hi: iv.Hi})
		default:
			out = append(out, iv)
		}
	}
	return out
}

func compact(intervals []Interval) []Interval {
	var out []Interval
	for _, iv := range intervals {
		if valid(iv) {
			out = append(out, iv)
		}
	}
	return out
}
