package model

import "golang.org/x/exp/constraints"

// Max returns the larger of a and b, used by Job.EstimatedSize to combine
// the fine-grained and coarse estimate counters. Uses
// golang.org/x/exp/constraints for a generic numeric helper rather than
// writing one per numeric type.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}
