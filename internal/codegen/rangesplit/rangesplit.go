// Package rangesplit models the recursive splitting of an inclusive
// integer range into chunks small enough to run as a single task. The
// procedures emitted by codegen for split loops perform exactly the
// arithmetic of Step; Partition drives Step to completion and is used to
// reason about coverage.
package rangesplit

import (
	"fmt"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// Range is the inclusive range Lo, Lo+Step, ... <= Hi.
type Range struct {
	Lo, Hi, Step int64
}

func (r Range) String() string { return fmt.Sprintf("[%d..%d/%d]", r.Lo, r.Hi, r.Step) }

// Iters is the iteration count as the split procedure computes it:
// ((Hi - Lo) / Step) + 1 with truncating division. An empty range whose
// span is shorter than one step counts as one iteration and runs none.
func (r Range) Iters() int64 { return (r.Hi-r.Lo)/r.Step + 1 }

// Values lists the loop values of r.
func (r Range) Values() []int64 {
	var out []int64
	for v := r.Lo; v <= r.Hi; v += r.Step {
		out = append(out, v)
	}

	return out
}

// Result is the outcome of one split step: either r is a base case or it
// is divided into Work.
type Result struct {
	Base bool
	Work []Range
}

// Skip returns the chunk width, in iterations, used to divide a range of
// iters iterations: max(degree, ceil(iters / degree)).
func Skip(iters int64, degree int) int64 {
	d := int64(degree)

	return max(d, (iters-1)/d+1)
}

func check(r Range, degree int) error {
	// A degree of 1 yields a single chunk equal to the input.
	if degree < 2 {
		return ferrors.Internal("range split", "split degree must be at least 2, got %d", degree)
	}

	if r.Step <= 0 {
		return ferrors.Internal("range split", "step must be positive, got %d", r.Step)
	}

	return nil
}

// Step performs one split step on r.
func Step(r Range, degree int) (Result, error) {
	if err := check(r, degree); err != nil {
		return Result{}, err
	}

	iters := r.Iters()
	if iters <= int64(degree) {
		return Result{Base: true}, nil
	}

	// Chunks are whole iterations wide, so every chunk stays on the step grid.
	stride := Skip(iters, degree) * r.Step

	var work []Range

	for start := r.Lo; start <= r.Hi; start += stride {
		work = append(work, Range{Lo: start, Hi: min(r.Hi, start+stride-1), Step: r.Step})
	}

	return Result{Work: work}, nil
}

// Partition splits r until only base cases remain and returns them in the
// order a FIFO scheduler would run them.
func Partition(r Range, degree int) ([]Range, error) {
	if err := check(r, degree); err != nil {
		return nil, err
	}

	var (
		queue = []Range{r}
		base  []Range
	)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		res, err := Step(cur, degree)
		if err != nil {
			return nil, err
		}

		if res.Base {
			base = append(base, cur)

			continue
		}

		queue = append(queue, res.Work...)
	}

	return base, nil
}
