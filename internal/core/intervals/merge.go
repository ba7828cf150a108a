// Package intervals merges closed [start, end] intervals into a minimal disjoint set.
package intervals

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Interval is a closed range. Start <= End is expected but not checked.
type Interval[T any] struct {
	Start T
	End   T
}

// New is shorthand for Interval{Start: start, End: end}.
func New[T any](start, end T) Interval[T] {
	return Interval[T]{Start: start, End: end}
}

// MarshalJSON encodes the interval as a two-element array.
func (iv Interval[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]T{iv.Start, iv.End})
}

// UnmarshalJSON decodes a two-element array.
func (iv *Interval[T]) UnmarshalJSON(data []byte) error {
	var pair []T
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("interval must have exactly two elements, got %d", len(pair))
	}
	iv.Start, iv.End = pair[0], pair[1]
	return nil
}

// Merge returns the union of in as intervals sorted by start and pairwise disjoint.
//
// An interval that starts exactly where the previous one ends is kept separate:
// [[1,2],[2,3]] stays as two intervals. in is not modified. Callers must not pass an
// empty slice; nil is returned in that case.
func Merge[T any](in []Interval[T], compare func(a, b T) int) []Interval[T] {
	if len(in) == 0 {
		return nil
	}

	sorted := slices.Clone(in)
	// Equal starts: longest first, so the shorter ones are discarded as contained.
	slices.SortStableFunc(sorted, func(a, b Interval[T]) int {
		if c := compare(a.Start, b.Start); c != 0 {
			return c
		}
		return compare(b.End, a.End)
	})

	stack := make([]Interval[T], 0, len(sorted))
	stack = append(stack, sorted[0])
	for _, next := range sorted[1:] {
		top := &stack[len(stack)-1]
		switch {
		case compare(top.End, next.Start) <= 0:
			stack = append(stack, next)
		case compare(top.End, next.End) < 0:
			top.End = next.End
		}
	}
	return stack
}

// MergeOrdered merges intervals over any ordered type.
func MergeOrdered[T cmp.Ordered](in []Interval[T]) []Interval[T] {
	return Merge(in, cmp.Compare[T])
}

// MergeTimes merges timestamp intervals.
func MergeTimes(in []Interval[time.Time]) []Interval[time.Time] {
	return Merge(in, func(a, b time.Time) int { return a.Compare(b) })
}
