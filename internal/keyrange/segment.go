// Package keyrange implements the key-range algebra that partitions the
// Event.ID primary-key space into disjoint segments, redesigned from the
// original client's date-based segment generator (original_source's
// generate_time_periods_and/or operated on EventDate) to operate on the
// integer ID space instead.
package keyrange

import (
	"strconv"

	"github.com/douglaslinsmeyer/carol-query-engine/internal/rules"
)

// Bounds of the universe this algebra partitions, and the fixed stride
// segments are sliced into before becoming work items for the executor.
const (
	LowerBound         = 0
	UpperBound         = 200000
	DefaultSegmentSize = 400
)

// Interval is a closed-closed integer range [Lo, Hi]. A bare [n, n] is legal.
type Interval struct {
	Lo, Hi int
}

func valid(iv Interval) bool { return iv.Lo <= iv.Hi }

func intValue(r rules.Rule) (int, error) {
	n, err := strconv.Atoi(r.Value)
	if err != nil {
		return 0, rules.NewQueryError(rules.KindMalformed, "key-range constraint %q has a non-integer value: %v", r.Summary(), err)
	}
	return n, nil
}

// Slice splits each interval into ascending, closed-closed chunks no
// longer than segSize. The final chunk of an interval may be shorter.
func Slice(intervals []Interval, segSize int) []Interval {
	var out []Interval
	for _, iv := range intervals {
		if !valid(iv) {
			continue
		}
		lo := iv.Lo
		for lo <= iv.Hi {
			hi := lo + segSize - 1
			if hi > iv.Hi {
				hi = iv.Hi
			}
			out = append(out, Interval{Lo: lo, Hi: hi})
			lo = hi + 1
		}
	}
	return out
}

// complement returns the gaps in [LowerBound, UpperBound] left uncovered
// by the given disjoint, sorted, closed intervals.
func complement(covered []Interval) []Interval {
	var gaps []Interval
	cursor := LowerBound
	for _, iv := range covered {
		if iv.Lo > cursor {
			gaps = append(gaps, Interval{Lo: cursor, Hi: iv.Lo - 1})
		}
		if iv.Hi+1 > cursor {
			cursor = iv.Hi + 1
		}
	}
	if cursor <= UpperBound {
		gaps = append(gaps, Interval{Lo: cursor, Hi: UpperBound})
	}
	return gaps
}
