// Package bracket implements the adaptive binary-search bracketer that
// tightens the effective [lo, hi] key range before partitioning, when a
// download is requested, the caller supplied no Event.ID constraint, and
// the probe count exceeds MaxOneRequest.
package bracket

import (
	"context"
	"strconv"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/keyrange"
	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// ProbeFunc counts results for a constraint set over [lo, hi]; the driver
// supplies one backed by the constraint compiler and a transport.Session.
type ProbeFunc func(ctx context.Context, constraints []rules.Rule) (int, error)

// Bounds is the narrowed key range to use when building segments.
type Bounds struct {
	Lo, Hi int
}

// Run performs the lower-edge binary search and, in OR mode only, the
// upper-edge search. Under AND the upper search is explicitly skipped —
// the source client restricts it to OR mode and this preserves that
// behavior rather than "fixing" it (spec.md §9, Open Question #1).
func Run(ctx context.Context, probe ProbeFunc, general []rules.Rule, requireAll bool) (Bounds, error) {
	lo, err := searchLowerEdge(ctx, probe, general, requireAll)
	if err != nil {
		return Bounds{}, err
	}

	hi := keyrange.UpperBound
	if !requireAll {
		hi, err = searchUpperEdge(ctx, probe, general, requireAll)
		if err != nil {
			return Bounds{}, err
		}
	}

	return Bounds{Lo: lo, Hi: hi}, nil
}

// searchLowerEdge narrows lo via binary search: while the window is wider
// than one segment, probe the lower half; shrink toward whichever half
// has results.
func searchLowerEdge(ctx context.Context, probe ProbeFunc, general []rules.Rule, requireAll bool) (int, error) {
	lo, hi := keyrange.LowerBound, keyrange.UpperBound
	window := keyrange.DefaultSegmentSize

	for hi-lo > window {
		mid := lo + (hi-lo)/2

		count, err := probeRange(ctx, probe, general, requireAll, lo-1, mid)
		if err != nil {
			return 0, err
		}

		if count > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	return lo - 1, nil
}

// searchUpperEdge is the upper-edge twin, narrowing hi.
func searchUpperEdge(ctx context.Context, probe ProbeFunc, general []rules.Rule, requireAll bool) (int, error) {
	lo, hi := keyrange.LowerBound, keyrange.UpperBound
	window := keyrange.DefaultSegmentSize

	for hi-lo > window {
		mid := lo + (hi-lo)/2

		count, err := probeRange(ctx, probe, general, requireAll, mid, hi+1)
		if err != nil {
			return 0, err
		}

		if count > 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	return hi + 1, nil
}

// probeRange asks whether any result exists with Event.ID strictly
// between lo and hi. Under AND the combined bracket is probed as one
// request; under OR each user rule is probed separately (plus the
// bracket) and the search stops as soon as any returns a positive count,
// per spec.md §4.5.
func probeRange(ctx context.Context, probe ProbeFunc, general []rules.Rule, requireAll bool, lo, hi int) (int, error) {
	bracket := []rules.Rule{
		{Field: "Event", Subfield: "ID", Condition: "is greater than", Value: strconv.Itoa(lo)},
		{Field: "Event", Subfield: "ID", Condition: "is less than", Value: strconv.Itoa(hi)},
	}

	if requireAll || len(general) == 0 {
		combined := append(append([]rules.Rule(nil), bracket...), general...)
		return probe(ctx, combined)
	}

	for _, r := range general {
		combined := append(append([]rules.Rule(nil), bracket...), r)
		count, err := probe(ctx, combined)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			return count, nil
		}
	}
	return 0, nil
}
