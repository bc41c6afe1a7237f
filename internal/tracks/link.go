// Package tracks links per-frame features into cells.
//
// Each open trajectory predicts where its feature will be in the next
// frame. Features and predictions within the search range form candidate
// links, and each connected group of candidates is solved as an optimal
// assignment in which leaving a feature or trajectory unmatched costs the
// squared search range. Oversized groups are re-solved with a shrinking
// search range.
package tracks

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/banshee-data/celltrack/internal/config"
	"github.com/banshee-data/celltrack/internal/features"
	"github.com/banshee-data/celltrack/internal/monitoring"
)

// Params configures linking.
type Params struct {
	SearchRange    float64 // pixels
	Memory         int     // frames a trajectory may go unmatched
	Stubs          int     // minimum features for a kept cell
	Order          int     // extrapolation polynomial order
	Predict        bool    // false links to the last position
	SubnetworkSize int
	AdaptiveStep   float64
	AdaptiveStop   float64
}

// SearchRange converts the maximum speed to a whole-pixel search radius:
// int(dt*vMax/dxy), or int(dMin/dxy) when dMin is positive.
func SearchRange(dtMinutes, vMax, dxyKm, dMin float64) float64 {
	if dxyKm <= 0 {
		return 0
	}
	if dMin > 0 {
		return math.Trunc(dMin / dxyKm)
	}
	return math.Trunc(dtMinutes * vMax / dxyKm)
}

// ParamsFromConfig reads linking parameters from a tuning config for a
// grid with the given time step and spacing.
func ParamsFromConfig(cfg *config.TuningConfig, dtMinutes, dxyKm float64) Params {
	return Params{
		SearchRange:    SearchRange(dtMinutes, cfg.GetVMax(), dxyKm, cfg.GetDMin()),
		Memory:         cfg.GetMemory(),
		Stubs:          cfg.GetStubs(),
		Order:          cfg.GetOrder(),
		Predict:        cfg.GetMethodLinking() == config.LinkingPredict,
		SubnetworkSize: cfg.GetSubnetworkSize(),
		AdaptiveStep:   cfg.GetAdaptiveStep(),
		AdaptiveStop:   cfg.GetAdaptiveStop(),
	}
}

// Result summarises a linking run.
type Result struct {
	Trajectories int // all trajectories, including stubs
	Cells        int // trajectories kept as cells
	Oversize     int // subnetworks still oversize at the adaptive stop
}

type trajectory struct {
	hist    []point
	members []int
}

func (t *trajectory) lastFrame() int { return t.hist[len(t.hist)-1].frame }

// Link assigns Cell and TimeCell on every feature. Features must carry
// Frame, Hdim1, Hdim2 and Time. Cells are numbered 1..K in order of first
// appearance; features in trajectories shorter than Stubs get Cell -1.
func Link(ctx context.Context, fs []features.Feature, nframes int, p Params) (Result, error) {
	if p.SearchRange < 0 {
		return Result{}, fmt.Errorf("negative search range %v", p.SearchRange)
	}
	if p.SearchRange == 0 {
		monitoring.Logf("warning: search range is 0 pixels; no features will be linked")
	}
	for i := range fs {
		fs[i].Cell = -1
		fs[i].TimeCell = 0
	}

	l := &linker{p: p, fs: fs}
	groups := features.ByFrame(fs, nframes)
	for k := 0; k < nframes; k++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		l.step(k, groups[k])
	}

	res := Result{Trajectories: len(l.trajs), Oversize: l.oversize}
	for _, t := range l.trajs {
		if len(t.members) < p.Stubs {
			continue
		}
		res.Cells++
		first := fs[t.members[0]].Time
		for _, i := range t.members {
			fs[i].Cell = res.Cells
			fs[i].TimeCell = fs[i].Time.Sub(first)
		}
	}
	monitoring.Logf("linked %d features into %d trajectories, %d cells (stubs < %d dropped)",
		len(fs), res.Trajectories, res.Cells, p.Stubs)
	return res, nil
}

type linker struct {
	p        Params
	fs       []features.Feature
	trajs    []*trajectory
	oversize int
}

// step links the features of frame k to the open trajectories.
func (l *linker) step(k int, feats []int) {
	var open []*trajectory
	for _, t := range l.trajs {
		if k-t.lastFrame() <= l.p.Memory+1 {
			open = append(open, t)
		}
	}

	preds := make([][2]float64, len(open))
	for j, t := range open {
		if l.p.Predict {
			preds[j][0], preds[j][1] = extrapolate(t.hist, k, l.p.Order)
		} else {
			last := t.hist[len(t.hist)-1]
			preds[j] = [2]float64{last.y, last.x}
		}
	}

	trajIdx := make([]int, len(open))
	for j := range trajIdx {
		trajIdx[j] = j
	}
	matched := make(map[int]int) // feature index -> open trajectory
	l.solve(feats, trajIdx, preds, l.p.SearchRange, matched)

	for _, fi := range feats {
		f := l.fs[fi]
		pt := point{frame: k, y: f.Hdim1, x: f.Hdim2}
		if j, ok := matched[fi]; ok {
			open[j].hist = append(open[j].hist, pt)
			open[j].members = append(open[j].members, fi)
			continue
		}
		l.trajs = append(l.trajs, &trajectory{hist: []point{pt}, members: []int{fi}})
	}
}

// solve splits the candidate links into connected subnetworks and assigns
// each one, shrinking the range for subnetworks larger than
// SubnetworkSize.
func (l *linker) solve(feats, trajs []int, preds [][2]float64, r float64, matched map[int]int) {
	if len(feats) == 0 || len(trajs) == 0 || r <= 0 {
		return
	}
	r2 := r * r
	nf := len(feats)

	g := simple.NewUndirectedGraph()
	for n := 0; n < nf+len(trajs); n++ {
		g.AddNode(simple.Node(n))
	}
	for a, fi := range feats {
		for b, tj := range trajs {
			if l.dist2(fi, preds[tj]) <= r2 {
				g.SetEdge(simple.Edge{F: simple.Node(a), T: simple.Node(nf + b)})
			}
		}
	}

	for _, comp := range topo.ConnectedComponents(g) {
		subF, subT := splitComponent(comp, nf, feats, trajs)
		if len(subF) == 0 || len(subT) == 0 {
			continue
		}
		size := len(subF)
		if len(subT) > size {
			size = len(subT)
		}
		if l.p.SubnetworkSize > 0 && size > l.p.SubnetworkSize {
			next := r * l.p.AdaptiveStep
			if l.p.AdaptiveStep > 0 && l.p.AdaptiveStep < 1 && next >= l.p.AdaptiveStop*l.p.SearchRange {
				monitoring.Debugf("subnetwork of %d exceeds %d, shrinking range to %.2f", size, l.p.SubnetworkSize, next)
				l.solve(subF, subT, preds, next, matched)
				continue
			}
			l.oversize++
			monitoring.Logf("warning: subnetwork of %d features still exceeds %d at range %.2f", size, l.p.SubnetworkSize, r)
		}
		l.assign(subF, subT, preds, r2, matched)
	}
}

func splitComponent(comp []graph.Node, nf int, feats, trajs []int) (subF, subT []int) {
	for _, n := range comp {
		id := int(n.ID())
		if id < nf {
			subF = append(subF, feats[id])
		} else {
			subT = append(subT, trajs[id-nf])
		}
	}
	return subF, subT
}

// assign solves one subnetwork. The cost matrix is augmented so that a
// feature may start a new trajectory and a trajectory may skip this frame,
// each at the cost of the squared search range.
func (l *linker) assign(feats, trajs []int, preds [][2]float64, r2 float64, matched map[int]int) {
	nf, nt := len(feats), len(trajs)
	dim := nf + nt
	cost := make([][]float64, dim)
	for i := range cost {
		cost[i] = make([]float64, dim)
		for j := range cost[i] {
			cost[i][j] = forbiddenCost
		}
	}
	for a, fi := range feats {
		for b, tj := range trajs {
			if d2 := l.dist2(fi, preds[tj]); d2 <= r2 {
				cost[a][b] = d2
			}
		}
		cost[a][nt+a] = r2
	}
	for b := range trajs {
		cost[nf+b][b] = r2
		for a := range feats {
			cost[nf+b][nt+a] = 0
		}
	}

	for a, col := range hungarianAssign(cost)[:nf] {
		if col >= 0 && col < nt {
			matched[feats[a]] = trajs[col]
		}
	}
}

func (l *linker) dist2(fi int, pred [2]float64) float64 {
	dy := l.fs[fi].Hdim1 - pred[0]
	dx := l.fs[fi].Hdim2 - pred[1]
	return dy*dy + dx*dx
}
