package layout

import (
	"math"
	"sort"
)

const defaultSweeps = 4

// Layered is a deterministic layered (Sugiyama style) engine. Cycles are
// broken by reversing DFS back edges, ranks come from a longest-path
// assignment, and barycenter sweeps order nodes within each rank.
type Layered struct {
	// Sweeps is the number of ordering passes; zero uses the default of 4.
	Sweeps int
}

type pair struct{ from, to int }

// Layout implements Engine.
func (l Layered) Layout(nodes []NodeBox, edges []EdgeRef, s Settings) Result {
	res := Result{Placements: make(map[string]Placement, len(nodes)), PathStyle: PathStyle}

	boxes := make([]NodeBox, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = len(boxes)
		boxes = append(boxes, n)
	}
	if len(boxes) == 0 {
		return res
	}

	succ := adjacency(len(boxes), edges, index)
	pred, dagSucc := acyclic(succ)
	ranks := longestPath(dagSucc, pred)
	layers := l.order(boxes, ranks, pred, dagSucc)

	source, target := s.Orientation.Handles()
	centers := coordinates(boxes, layers, s)

	minX, minY := math.Inf(1), math.Inf(1)
	topLeft := make([]Point, len(boxes))
	for v, b := range boxes {
		w, h := b.size()
		topLeft[v] = Point{X: centers[v].X - w/2, Y: centers[v].Y - h/2}
		minX = math.Min(minX, topLeft[v].X)
		minY = math.Min(minY, topLeft[v].Y)
	}

	for r, layer := range layers {
		for o, v := range layer {
			res.Placements[boxes[v].ID] = Placement{
				Position:   Point{X: topLeft[v].X - minX, Y: topLeft[v].Y - minY},
				SourceSide: source,
				TargetSide: target,
				Rank:       r,
				Order:      o,
			}
		}
	}
	return res
}

// adjacency builds deduplicated successor lists, dropping self loops and
// edges with unknown endpoints.
func adjacency(n int, edges []EdgeRef, index map[string]int) [][]int {
	succ := make([][]int, n)
	seen := make(map[pair]bool, len(edges))
	for _, e := range edges {
		u, ok1 := index[e.Source]
		w, ok2 := index[e.Target]
		if !ok1 || !ok2 || u == w || seen[pair{u, w}] {
			continue
		}
		seen[pair{u, w}] = true
		succ[u] = append(succ[u], w)
	}
	return succ
}

// acyclic reverses the back edges found by an iterative DFS in input order
// and returns the predecessor and successor lists of the resulting DAG.
func acyclic(succ [][]int) (pred, dagSucc [][]int) {
	n := len(succ)
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]uint8, n)
	reversed := make(map[pair]bool)

	type frame struct{ v, next int }
	for root := 0; root < n; root++ {
		if state[root] != unvisited {
			continue
		}
		state[root] = onStack
		stack := []frame{{v: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(succ[top.v]) {
				w := succ[top.v][top.next]
				top.next++
				switch state[w] {
				case unvisited:
					state[w] = onStack
					stack = append(stack, frame{v: w})
				case onStack:
					reversed[pair{top.v, w}] = true
				}
				continue
			}
			state[top.v] = done
			stack = stack[:len(stack)-1]
		}
	}

	pred = make([][]int, n)
	dagSucc = make([][]int, n)
	seen := make(map[pair]bool)
	for u := range succ {
		for _, w := range succ[u] {
			from, to := u, w
			if reversed[pair{u, w}] {
				from, to = w, u
			}
			if seen[pair{from, to}] {
				continue
			}
			seen[pair{from, to}] = true
			dagSucc[from] = append(dagSucc[from], to)
			pred[to] = append(pred[to], from)
		}
	}
	for v := 0; v < n; v++ {
		sort.Ints(dagSucc[v])
		sort.Ints(pred[v])
	}
	return pred, dagSucc
}

// longestPath assigns every node the length of the longest path reaching it.
func longestPath(succ, pred [][]int) []int {
	n := len(succ)
	rank := make([]int, n)
	indeg := make([]int, n)
	queue := make([]int, 0, n)
	for v := 0; v < n; v++ {
		indeg[v] = len(pred[v])
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	for i := 0; i < len(queue); i++ {
		u := queue[i]
		for _, w := range succ[u] {
			if rank[u]+1 > rank[w] {
				rank[w] = rank[u] + 1
			}
			indeg[w]--
			if indeg[w] == 0 {
				queue = append(queue, w)
			}
		}
	}
	return rank
}

func (l Layered) order(boxes []NodeBox, ranks []int, pred, succ [][]int) [][]int {
	maxRank := 0
	for _, r := range ranks {
		maxRank = max(maxRank, r)
	}
	layers := make([][]int, maxRank+1)
	for v, r := range ranks {
		layers[r] = append(layers[r], v)
	}

	pos := make([]int, len(boxes))
	reindex := func(layer []int) {
		for i, v := range layer {
			pos[v] = i
		}
	}
	for _, layer := range layers {
		reindex(layer)
	}

	sweeps := l.Sweeps
	if sweeps <= 0 {
		sweeps = defaultSweeps
	}

	bary := make([]float64, len(boxes))
	sortLayer := func(layer []int, neighbours [][]int) {
		for _, v := range layer {
			bary[v] = float64(pos[v])
			if len(neighbours[v]) == 0 {
				continue
			}
			sum := 0
			for _, u := range neighbours[v] {
				sum += pos[u]
			}
			bary[v] = float64(sum) / float64(len(neighbours[v]))
		}
		sort.SliceStable(layer, func(i, j int) bool {
			a, b := layer[i], layer[j]
			if bary[a] != bary[b] {
				return bary[a] < bary[b]
			}
			return boxes[a].ID < boxes[b].ID
		})
		reindex(layer)
	}

	for i := 0; i < sweeps; i++ {
		if i%2 == 0 {
			for r := 1; r <= maxRank; r++ {
				sortLayer(layers[r], pred)
			}
		} else {
			for r := maxRank - 1; r >= 0; r-- {
				sortLayer(layers[r], succ)
			}
		}
	}
	return layers
}

// coordinates returns node centers. Ranks advance along x for horizontal
// layouts and along y for vertical ones; each rank is centered on the cross
// axis.
func coordinates(boxes []NodeBox, layers [][]int, s Settings) []Point {
	rankSep, nodeSep := s.Density.Separation()
	vertical := s.Orientation == Vertical

	along := func(v int) (rankSize, crossSize float64) {
		w, h := boxes[v].size()
		if vertical {
			return h, w
		}
		return w, h
	}

	centers := make([]Point, len(boxes))
	offset := 0.0
	for _, layer := range layers {
		thickness, total := 0.0, 0.0
		for i, v := range layer {
			rs, cs := along(v)
			thickness = math.Max(thickness, rs)
			total += cs
			if i > 0 {
				total += nodeSep
			}
		}

		rankCenter := offset + thickness/2
		cursor := -total / 2
		for _, v := range layer {
			_, cs := along(v)
			crossCenter := cursor + cs/2
			cursor += cs + nodeSep
			if vertical {
				centers[v] = Point{X: crossCenter, Y: rankCenter}
			} else {
				centers[v] = Point{X: rankCenter, Y: crossCenter}
			}
		}
		offset += thickness + rankSep
	}
	return centers
}
