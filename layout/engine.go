package layout

const (
	// DefaultNodeWidth is used for nodes that have not been measured.
	DefaultNodeWidth = 128
	// DefaultNodeHeight is used for nodes that have not been measured.
	DefaultNodeHeight = 128

	// PathStyle is the edge curve style written on every laid out edge.
	PathStyle = "simplebezier"
)

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeBox is a node to be placed. Zero dimensions fall back to the defaults.
type NodeBox struct {
	ID     string
	Width  float64
	Height float64
}

func (b NodeBox) size() (w, h float64) {
	w, h = b.Width, b.Height
	if w <= 0 {
		w = DefaultNodeWidth
	}
	if h <= 0 {
		h = DefaultNodeHeight
	}
	return w, h
}

// EdgeRef is a directed connection between two node ids.
type EdgeRef struct {
	Source string
	Target string
}

// Placement is the computed geometry for one node. Position is the top-left
// corner of the node box.
type Placement struct {
	Position   Point
	SourceSide HandleSide
	TargetSide HandleSide
	Rank       int
	Order      int
}

// Result maps node ids to their placements.
type Result struct {
	Placements map[string]Placement
	PathStyle  string
}

// Engine places nodes. Implementations must be deterministic: identical
// inputs produce identical results.
type Engine interface {
	Layout(nodes []NodeBox, edges []EdgeRef, s Settings) Result
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(nodes []NodeBox, edges []EdgeRef, s Settings) Result

// Layout calls f.
func (f EngineFunc) Layout(nodes []NodeBox, edges []EdgeRef, s Settings) Result {
	return f(nodes, edges, s)
}
