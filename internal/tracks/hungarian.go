package tracks

import "math"

// forbiddenCost marks a feature/trajectory pair outside the search range.
const forbiddenCost = 1e18

// hungarianAssign pairs rows (features) with columns (trajectory
// predictions) so the summed squared pixel displacement is minimal. It
// returns, per row, the chosen column or -1. Pairs costing forbiddenCost or
// more are never returned, so rows left without an in-range trajectory stay
// unassigned.
func hungarianAssign(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	out := make([]int, rows)
	for i := range out {
		out[i] = -1
	}
	if cols == 0 {
		return out
	}

	s := newAssigner(squareUp(cost, rows, cols))
	for r := 0; r < s.n; r++ {
		s.augment(r)
	}
	for c, r := range s.colOwner {
		if r >= 0 && r < rows && c < cols && cost[r][c] < forbiddenCost {
			out[r] = c
		}
	}
	return out
}

// squareUp copies cost into an n×n matrix, n = max(rows, cols), filling the
// padding with forbiddenCost.
func squareUp(cost [][]float64, rows, cols int) [][]float64 {
	n := max(rows, cols)
	sq := make([][]float64, n)
	for i := range sq {
		sq[i] = make([]float64, n)
		for j := range sq[i] {
			sq[i][j] = forbiddenCost
			if i < rows && j < cols {
				sq[i][j] = cost[i][j]
			}
		}
	}
	return sq
}

// assigner holds the dual potentials of the shortest augmenting path form
// of Kuhn-Munkres on a square matrix.
type assigner struct {
	n        int
	c        [][]float64
	rowPot   []float64
	colPot   []float64
	colOwner []int // row matched to each column, -1 while free

	// Scratch reused across augment calls.
	slack []float64
	prev  []int // column preceding each column on the path, -1 for the root
	done  []bool
}

func newAssigner(c [][]float64) *assigner {
	n := len(c)
	s := &assigner{
		n:        n,
		c:        c,
		rowPot:   make([]float64, n),
		colPot:   make([]float64, n),
		colOwner: make([]int, n),
		slack:    make([]float64, n),
		prev:     make([]int, n),
		done:     make([]bool, n),
	}
	for j := range s.colOwner {
		s.colOwner[j] = -1
	}
	return s
}

// augment matches row r, grows a Dijkstra-style tree over reduced costs from
// r until a free column is reached, and flips the path.
func (s *assigner) augment(r int) {
	for j := 0; j < s.n; j++ {
		s.slack[j] = math.Inf(1)
		s.prev[j] = -1
		s.done[j] = false
	}

	row, last := r, -1
	for {
		best, bestCol := math.Inf(1), -1
		for j := 0; j < s.n; j++ {
			if s.done[j] {
				continue
			}
			if d := s.c[row][j] - s.rowPot[row] - s.colPot[j]; d < s.slack[j] {
				s.slack[j] = d
				s.prev[j] = last
			}
			if s.slack[j] < best {
				best, bestCol = s.slack[j], j
			}
		}
		if bestCol < 0 {
			return
		}

		s.rowPot[r] += best
		for j := 0; j < s.n; j++ {
			if s.done[j] {
				s.rowPot[s.colOwner[j]] += best
				s.colPot[j] -= best
			} else {
				s.slack[j] -= best
			}
		}

		s.done[bestCol] = true
		last = bestCol
		if s.colOwner[bestCol] < 0 {
			break
		}
		row = s.colOwner[bestCol]
	}

	for j := last; j >= 0; {
		p := s.prev[j]
		if p < 0 {
			s.colOwner[j] = r
		} else {
			s.colOwner[j] = s.colOwner[p]
		}
		j = p
	}
}
