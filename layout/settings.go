// Package layout computes node positions and handle sides for a flow diagram.
//
// The package is a pure function of its inputs: given node boxes, the edges
// between them, and the global Settings, an Engine returns a placement for
// every node. It never reads or writes flow state. The flow store calls it
// whenever orientation or density changes and after merging generated flows.
package layout

import "fmt"

// Orientation selects the rank direction of the diagram.
type Orientation string

// Orientations
const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool {
	return o == Horizontal || o == Vertical
}

// HandleSide is the side of a node box a connection handle is drawn on.
type HandleSide string

// Handle sides
const (
	Left   HandleSide = "left"
	Right  HandleSide = "right"
	Top    HandleSide = "top"
	Bottom HandleSide = "bottom"
)

// Handles returns the source and target handle sides for the orientation.
func (o Orientation) Handles() (source, target HandleSide) {
	if o == Vertical {
		return Bottom, Top
	}
	return Right, Left
}

// Density selects the spacing preset.
type Density string

// Densities, in cycle order
const (
	Compact     Density = "compact"
	Cozy        Density = "cozy"
	Comfortable Density = "comfortable"
)

// Valid reports whether d is a known density.
func (d Density) Valid() bool {
	switch d {
	case Compact, Cozy, Comfortable:
		return true
	}
	return false
}

// Next returns the density that follows d in the compact, cozy, comfortable
// cycle.
func (d Density) Next() Density {
	switch d {
	case Compact:
		return Cozy
	case Cozy:
		return Comfortable
	default:
		return Compact
	}
}

// Separation returns the rank and node spacing for the preset.
func (d Density) Separation() (rank, node float64) {
	switch d {
	case Compact:
		return 20, 20
	case Comfortable:
		return 75, 75
	default:
		return 50, 50
	}
}

// Settings are the flow-wide layout parameters.
type Settings struct {
	Orientation Orientation `json:"orientation"`
	Density     Density     `json:"density"`
}

// DefaultSettings returns horizontal orientation at cozy density.
func DefaultSettings() Settings {
	return Settings{Orientation: Horizontal, Density: Cozy}
}

// Validate checks both fields.
func (s Settings) Validate() error {
	if !s.Orientation.Valid() {
		return fmt.Errorf("unknown layout orientation %q", s.Orientation)
	}
	if !s.Density.Valid() {
		return fmt.Errorf("unknown layout density %q", s.Density)
	}
	return nil
}
