// Package lp is a hand-rolled simplex solver over gonum.org/v1/gonum/mat
// for the optimised planner's LP relaxation (spec §4.5). No LP/ILP
// library appears anywhere in the retrieval pack, so this reconstructs
// the textbook two-dimensional tableau method rather than reaching for
// one; see SPEC_FULL.md "DOMAIN STACK".
package lp

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Status is the solver's outcome for a Problem.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
)

// Problem is a standard-form LP: maximize C·x subject to A·x ≤ B, x ≥ 0.
// Every constraint the optimised planner builds (server capacities,
// per-user single-assignment, per-BS user counts) is naturally of this
// ≤-with-nonnegative-RHS shape, so no phase-1 artificial-variable step
// is needed — the origin is always a feasible starting basis.
type Problem struct {
	C []float64
	A [][]float64
	B []float64
}

// Result is the solver's output: the optimal x (when Status is
// StatusOptimal) and the outcome status.
type Result struct {
	X      []float64
	Status Status
}

// Solve runs the Dantzig-rule simplex method on p.
func Solve(p Problem) Result {
	m := len(p.A)
	n := len(p.C)

	for _, row := range p.A {
		if len(row) != n {
			return Result{Status: StatusInfeasible}
		}
	}

	for _, b := range p.B {
		if b < 0 {
			return Result{Status: StatusInfeasible}
		}
	}

	if m == 0 || n == 0 {
		return Result{X: make([]float64, n), Status: StatusOptimal}
	}

	rows := m + 1
	cols := n + m + 1
	tab := mat.NewDense(rows, cols, nil)

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			tab.Set(i, j, p.A[i][j])
		}

		tab.Set(i, n+i, 1)
		tab.Set(i, cols-1, p.B[i])
	}

	for j := 0; j < n; j++ {
		tab.Set(m, j, -p.C[j])
	}

	basis := make([]int, m)
	for i := range basis {
		basis[i] = n + i
	}

	const maxIter = 2000
	const eps = 1e-9

	for iter := 0; iter < maxIter; iter++ {
		pivotCol := -1
		best := -eps

		for j := 0; j < n+m; j++ {
			v := tab.At(m, j)
			if v < best {
				best = v
				pivotCol = j
			}
		}

		if pivotCol == -1 {
			break // no negative reduced cost left: optimal
		}

		pivotRow := -1
		bestRatio := math.Inf(1)

		for i := 0; i < m; i++ {
			a := tab.At(i, pivotCol)
			if a <= eps {
				continue
			}

			ratio := tab.At(i, cols-1) / a
			if ratio < bestRatio {
				bestRatio = ratio
				pivotRow = i
			}
		}

		if pivotRow == -1 {
			return Result{Status: StatusUnbounded}
		}

		pivotVal := tab.At(pivotRow, pivotCol)
		for j := 0; j < cols; j++ {
			tab.Set(pivotRow, j, tab.At(pivotRow, j)/pivotVal)
		}

		for i := 0; i < rows; i++ {
			if i == pivotRow {
				continue
			}

			factor := tab.At(i, pivotCol)
			if factor == 0 {
				continue
			}

			for j := 0; j < cols; j++ {
				tab.Set(i, j, tab.At(i, j)-factor*tab.At(pivotRow, j))
			}
		}

		basis[pivotRow] = pivotCol
	}

	x := make([]float64, n)
	for i, b := range basis {
		if b < n {
			x[b] = tab.At(i, cols-1)
		}
	}

	return Result{X: x, Status: StatusOptimal}
}
