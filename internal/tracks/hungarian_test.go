package tracks

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignmentCost(t *testing.T, cost [][]float64, got []int) float64 {
	t.Helper()
	total := 0.0
	used := map[int]bool{}
	for i, j := range got {
		if j < 0 {
			continue
		}
		require.False(t, used[j], "column %d assigned twice in %v", j, got)
		used[j] = true
		total += cost[i][j]
	}
	return total
}

// bruteForceMin tries every permutation of a square matrix.
func bruteForceMin(cost [][]float64) float64 {
	n := len(cost)
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	best := -1.0
	var walk func(k int, sum float64)
	walk = func(k int, sum float64) {
		if k == n {
			if best < 0 || sum < best {
				best = sum
			}
			return
		}
		for i := k; i < n; i++ {
			perm[k], perm[i] = perm[i], perm[k]
			walk(k+1, sum+cost[k][perm[k]])
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	walk(0, 0)
	return best
}

func TestHungarianAssignShapes(t *testing.T) {
	tests := []struct {
		name string
		cost [][]float64
		want []int
	}{
		{"empty", nil, nil},
		{"single", [][]float64{{5}}, []int{0}},
		{"no columns", [][]float64{{}, {}}, []int{-1, -1}},
		{"wide", [][]float64{{7, 3, 9}}, []int{1}},
		{"tall", [][]float64{{1}, {2}, {3}}, []int{0, -1, -1}},
		{"forbidden row", [][]float64{{1, 2}, {forbiddenCost, forbiddenCost}}, []int{0, -1}},
		{"both beyond range", [][]float64{{forbiddenCost}}, []int{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hungarianAssign(tt.cost))
		})
	}
}

func TestHungarianAssignOptimal(t *testing.T) {
	cost := [][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	}
	assert.Equal(t, 10.0, assignmentCost(t, cost, hungarianAssign(cost)))

	cost = [][]float64{
		{10, 5, 7, 1},
		{8, 9, 2, 6},
		{7, 3, 11, 5},
		{4, 12, 8, 9},
	}
	assert.Equal(t, []int{3, 2, 1, 0}, hungarianAssign(cost))
}

func TestHungarianAssignMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(6)
		cost := make([][]float64, n)
		for i := range cost {
			cost[i] = make([]float64, n)
			for j := range cost[i] {
				cost[i][j] = float64(rng.Intn(50))
			}
		}
		got := hungarianAssign(cost)
		require.Len(t, got, n)
		for i, j := range got {
			require.GreaterOrEqual(t, j, 0, "trial %d row %d unassigned", trial, i)
		}
		assert.Equal(t, bruteForceMin(cost), assignmentCost(t, cost, got), "trial %d: %v", trial, cost)
	}
}
