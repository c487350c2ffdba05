package eipdef

import (
	"fmt"
	"slices"
	"sort"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/pkg/ident"
)

// Registry indexes a catalog by component id. Child elements are indexed
// under their parent's namespace, so a child config with id
// {namespace: "integration", name: "mapping"} resolves to the first "mapping"
// element declared anywhere in the integration namespace.
type Registry struct {
	components map[ident.EipID]*Component
	elements   map[ident.EipID]*Element
	namespaces map[string][]string
}

// NewRegistry builds a Registry from a catalog.
func NewRegistry(catalog Catalog) *Registry {
	r := &Registry{
		components: make(map[ident.EipID]*Component),
		elements:   make(map[ident.EipID]*Element),
		namespaces: make(map[string][]string),
	}

	nsNames := make([]string, 0, len(catalog))
	for ns := range catalog {
		nsNames = append(nsNames, ns)
	}
	sort.Strings(nsNames)

	for _, ns := range nsNames {
		comps := catalog[ns]
		for i := range comps {
			c := &comps[i]
			id := ident.EipID{Namespace: ns, Name: c.Name}.Normalize()
			r.components[id] = c
			r.elements[id] = &c.Element
			r.namespaces[id.Namespace] = append(r.namespaces[id.Namespace], c.Name)
		}
		// Children are indexed after every component so a component name
		// always wins over a child element with the same name.
		for i := range comps {
			r.indexChildren(ns, &comps[i].Element)
		}
	}
	return r
}

func (r *Registry) indexChildren(ns string, root *Element) {
	stack := []*Element{root}
	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if el.ChildGroup == nil {
			continue
		}
		for i := range el.ChildGroup.Children {
			child := &el.ChildGroup.Children[i].Element
			id := ident.EipID{Namespace: ns, Name: child.Name}.Normalize()
			if _, exists := r.elements[id]; !exists {
				r.elements[id] = child
			}
			stack = append(stack, child)
		}
	}
}

// Lookup returns the top-level component for id.
func (r *Registry) Lookup(id ident.EipID) (*Component, bool) {
	c, ok := r.components[id.Normalize()]
	return c, ok
}

// LookupElement returns the component or child element for id.
func (r *Registry) LookupElement(id ident.EipID) (*Element, bool) {
	e, ok := r.elements[id.Normalize()]
	return e, ok
}

// Namespaces lists the catalog namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	out := make([]string, 0, len(r.namespaces))
	for ns := range r.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Components lists the component names declared in a namespace.
func (r *Registry) Components(namespace string) []string {
	return slices.Clone(r.namespaces[namespace])
}

// ValidateAttribute checks value against the declared type and restriction
// of attribute name on the element identified by id.
func (r *Registry) ValidateAttribute(id ident.EipID, name string, value Value) error {
	el, ok := r.LookupElement(id)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("no definition for %s", id), "Registry", "ValidateAttribute", "lookup element")
	}
	attr, ok := el.Attribute(name)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%s does not declare attribute %q", id, name), "Registry", "ValidateAttribute", "lookup attribute")
	}
	return ValidateValue(attr, value)
}

// ValidateValue checks a value against an attribute declaration.
func ValidateValue(attr Attribute, value Value) error {
	var want Kind
	switch attr.Type {
	case AttrBoolean:
		want = KindBoolean
	case AttrNumber:
		want = KindNumber
	default:
		want = KindString
	}
	if value.Kind() != want {
		return errors.WrapInvalid(
			fmt.Errorf("attribute %q expects %s, got %s", attr.Name, want, value.Kind()),
			"Registry", "ValidateValue", "check type")
	}
	if attr.Restriction != nil && len(attr.Restriction.Enum) > 0 {
		s, _ := value.Str()
		if !slices.Contains(attr.Restriction.Enum, s) {
			return errors.WrapInvalid(
				fmt.Errorf("attribute %q must be one of %v, got %q", attr.Name, attr.Restriction.Enum, s),
				"Registry", "ValidateValue", "check restriction")
		}
	}
	return nil
}
