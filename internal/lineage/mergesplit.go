// Package lineage groups linked cells into tracks through merges and
// splits, assembles the standardized feature/cell/track dataset, and
// derives neighbour counts.
package lineage

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/banshee-data/celltrack/internal/features"
)

// MergeSplit is the result of grouping cells into tracks.
type MergeSplit struct {
	Cells  []int // cell ids, ascending
	Tracks []int // track ids 1..T

	CellTrack       map[int]int // cell -> track
	CellStartsSplit map[int]bool
	CellEndsMerge   map[int]bool
	// Edges are the kept spanning-tree links, earlier-starting cell first.
	Edges []Edge
}

// Edge joins the end of Parent to the start of Child.
type Edge struct {
	Parent, Child int
	DistanceM     float64
}

// cellSpan is the first and last feature of a cell.
type cellSpan struct {
	id           int
	first, last  int // feature indices
	startF, endF int // frames
}

// MergeSplitMEST groups cells into tracks with a minimum euclidean spanning
// tree. Candidate edges join the last feature of one cell to the first
// feature of a later-starting cell whose start lies within frameLen frames
// of the first cell's end; the edge weight is the distance in metres
// between those features, with positions taken as pixel index times
// dxyM. Tree edges longer than distanceM are cut and each remaining
// connected component is a track.
//
// A kept edge whose parent is still alive when the child starts marks the
// child as starting with a split. Two or more kept edges from parents that
// end before the child starts mark those parents as ending with a merge.
func MergeSplitMEST(fs []features.Feature, dxyM, distanceM float64, frameLen int) (*MergeSplit, error) {
	if dxyM <= 0 {
		return nil, fmt.Errorf("grid spacing must be positive, got %v", dxyM)
	}
	spans := cellSpans(fs)
	ms := &MergeSplit{
		CellTrack:       make(map[int]int, len(spans)),
		CellStartsSplit: make(map[int]bool, len(spans)),
		CellEndsMerge:   make(map[int]bool, len(spans)),
	}
	if len(spans) == 0 {
		return ms, nil
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	byID := make(map[int]cellSpan, len(spans))
	for _, s := range spans {
		ms.Cells = append(ms.Cells, s.id)
		byID[s.id] = s
		g.AddNode(simple.Node(s.id))
	}
	for _, a := range spans {
		for _, b := range spans {
			if a.id == b.id || b.startF <= a.startF {
				continue
			}
			gap := b.startF - a.endF
			if gap > frameLen || gap < -frameLen {
				continue
			}
			w := featureDistance(fs[a.last], fs[b.first], dxyM)
			if existing := g.WeightedEdge(int64(a.id), int64(b.id)); existing != nil && existing.Weight() <= w {
				continue
			}
			g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(a.id), simple.Node(b.id), w))
		}
	}

	mst := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	path.Kruskal(mst, g)

	kept := simple.NewUndirectedGraph()
	for _, s := range spans {
		kept.AddNode(simple.Node(s.id))
	}
	edges := mst.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		if e.Weight() > distanceM {
			continue
		}
		u, v := int(e.From().ID()), int(e.To().ID())
		if byID[v].startF < byID[u].startF {
			u, v = v, u
		}
		kept.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
		ms.Edges = append(ms.Edges, Edge{Parent: u, Child: v, DistanceM: e.Weight()})
	}
	sort.Slice(ms.Edges, func(i, j int) bool {
		if ms.Edges[i].Child != ms.Edges[j].Child {
			return ms.Edges[i].Child < ms.Edges[j].Child
		}
		return ms.Edges[i].Parent < ms.Edges[j].Parent
	})

	comps := topo.ConnectedComponents(kept)
	minCell := func(c []int64) int64 {
		m := c[0]
		for _, v := range c[1:] {
			if v < m {
				m = v
			}
		}
		return m
	}
	ids := make([][]int64, len(comps))
	for i, comp := range comps {
		for _, n := range comp {
			ids[i] = append(ids[i], n.ID())
		}
	}
	sort.Slice(ids, func(i, j int) bool { return minCell(ids[i]) < minCell(ids[j]) })
	for t, comp := range ids {
		ms.Tracks = append(ms.Tracks, t+1)
		for _, id := range comp {
			ms.CellTrack[int(id)] = t + 1
		}
	}

	mergeParents := make(map[int][]int)
	for _, e := range ms.Edges {
		parent, child := byID[e.Parent], byID[e.Child]
		if parent.endF >= child.startF {
			ms.CellStartsSplit[e.Child] = true
		} else {
			mergeParents[e.Child] = append(mergeParents[e.Child], e.Parent)
		}
	}
	for _, parents := range mergeParents {
		if len(parents) < 2 {
			continue
		}
		for _, p := range parents {
			ms.CellEndsMerge[p] = true
		}
	}
	return ms, nil
}

func cellSpans(fs []features.Feature) []cellSpan {
	idx := make(map[int]int)
	var spans []cellSpan
	for i, f := range fs {
		if f.Cell < 0 {
			continue
		}
		n, ok := idx[f.Cell]
		if !ok {
			idx[f.Cell] = len(spans)
			spans = append(spans, cellSpan{id: f.Cell, first: i, last: i, startF: f.Frame, endF: f.Frame})
			continue
		}
		s := &spans[n]
		if f.Frame < s.startF || (f.Frame == s.startF && fs[i].ID < fs[s.first].ID) {
			s.first, s.startF = i, f.Frame
		}
		if f.Frame > s.endF || (f.Frame == s.endF && fs[i].ID > fs[s.last].ID) {
			s.last, s.endF = i, f.Frame
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].id < spans[j].id })
	return spans
}

func featureDistance(a, b features.Feature, dxyM float64) float64 {
	return math.Hypot(a.Hdim1-b.Hdim1, a.Hdim2-b.Hdim2) * dxyM
}
