// Package eipdef models integration component definitions and looks them up
// by typed component id.
//
// A definition describes a component's role on the canvas, how it connects to
// neighbours, the attributes it accepts, and the nested child elements that can
// be enabled beneath it. The flow engine treats the Registry as a pure lookup:
// a missing definition is a valid "render nothing" condition.
package eipdef

// Role is the canvas role of a component.
type Role string

// Roles
const (
	RoleEndpoint Role = "endpoint"
	RoleChannel  Role = "channel"
)

// ConnectionType describes how a component connects to other components.
type ConnectionType string

// Connection types
const (
	ConnectionSource             ConnectionType = "source"
	ConnectionSink               ConnectionType = "sink"
	ConnectionPassthru           ConnectionType = "passthru"
	ConnectionContentBasedRouter ConnectionType = "content_based_router"
	ConnectionRequestReply       ConnectionType = "request_reply"
	ConnectionTee                ConnectionType = "tee"
)

// Valid reports whether t is a known connection type.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnectionSource, ConnectionSink, ConnectionPassthru,
		ConnectionContentBasedRouter, ConnectionRequestReply, ConnectionTee:
		return true
	}
	return false
}

// AttrType is the declared value type of an attribute.
type AttrType string

// Attribute types
const (
	AttrString  AttrType = "string"
	AttrBoolean AttrType = "boolean"
	AttrNumber  AttrType = "number"
)

// Indicator constrains how children in a group may be combined.
type Indicator string

// Group indicators
const (
	IndicatorAll      Indicator = "all"
	IndicatorChoice   Indicator = "choice"
	IndicatorSequence Indicator = "sequence"
)

// Restriction limits a string attribute to a fixed set of values.
type Restriction struct {
	Base string   `json:"base,omitempty" yaml:"base,omitempty"`
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// Attribute is a declared configuration attribute.
type Attribute struct {
	Name        string       `json:"name" yaml:"name"`
	Type        AttrType     `json:"type" yaml:"type"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any          `json:"default,omitempty" yaml:"default,omitempty"`
	Required    bool         `json:"required,omitempty" yaml:"required,omitempty"`
	Restriction *Restriction `json:"restriction,omitempty" yaml:"restriction,omitempty"`
}

// Occurrence bounds how many times an element may appear. Max of -1 means
// unbounded.
type Occurrence struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// ChildGroup lists the child elements that may be enabled under an element.
type ChildGroup struct {
	Indicator  Indicator   `json:"indicator" yaml:"indicator"`
	Occurrence *Occurrence `json:"occurrence,omitempty" yaml:"occurrence,omitempty"`
	Children   []Child     `json:"children" yaml:"children"`
}

// Element holds the fields shared by components and their nested children.
type Element struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	ChildGroup  *ChildGroup `json:"childGroup,omitempty" yaml:"childGroup,omitempty"`
}

// Attribute returns the declared attribute with the given name.
func (e *Element) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Child returns the direct child element with the given name.
func (e *Element) Child(name string) (*Child, bool) {
	if e.ChildGroup == nil {
		return nil, false
	}
	for i := range e.ChildGroup.Children {
		if e.ChildGroup.Children[i].Name == name {
			return &e.ChildGroup.Children[i], true
		}
	}
	return nil, false
}

// Child is a nested configuration element. It never appears on the canvas.
type Child struct {
	Element    `yaml:",inline"`
	Occurrence *Occurrence `json:"occurrence,omitempty" yaml:"occurrence,omitempty"`
}

// Component is a top-level definition that can be dropped onto the canvas.
type Component struct {
	Element        `yaml:",inline"`
	Role           Role           `json:"role" yaml:"role"`
	ConnectionType ConnectionType `json:"connectionType" yaml:"connectionType"`
}

// Catalog maps a namespace to the components it defines.
type Catalog map[string][]Component
