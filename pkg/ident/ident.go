// Package ident generates identifiers for canvas nodes and nested child
// configurations and models typed component identifiers.
package ident

import (
	"fmt"
	"strings"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// NodeIDLength is the length of generated root node ids.
	NodeIDLength = 10
	// ChildIDLength is the length of generated child ids. The extra character
	// keeps the two id spaces visually distinct.
	ChildIDLength = 11
)

// Generator allocates fresh ids.
type Generator interface {
	NodeID() string
	ChildID() string
}

// NanoID generates URL-safe random ids.
type NanoID struct{}

// NodeID returns a fresh node id.
func (NanoID) NodeID() string {
	return gonanoid.Must(NodeIDLength)
}

// ChildID returns a fresh child id.
func (NanoID) ChildID() string {
	return gonanoid.Must(ChildIDLength)
}

// Sequence is a deterministic Generator for tests and fixtures.
type Sequence struct {
	mu       sync.Mutex
	nodes    int
	children int
}

// NodeID returns node-1, node-2, ...
func (s *Sequence) NodeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes++
	return fmt.Sprintf("node-%d", s.nodes)
}

// ChildID returns child-1, child-2, ...
func (s *Sequence) ChildID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children++
	return fmt.Sprintf("child-%d", s.children)
}

// EipID identifies a component definition by namespace and name.
type EipID struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String renders the id as namespace:name.
func (id EipID) String() string {
	return id.Namespace + ":" + id.Name
}

// IsZero reports whether both parts are empty.
func (id EipID) IsZero() bool {
	return id.Namespace == "" && id.Name == ""
}

// Normalize trims surrounding whitespace and lowercases the namespace.
// Names keep their case since definitions use camelCase names.
func (id EipID) Normalize() EipID {
	return EipID{
		Namespace: strings.ToLower(strings.TrimSpace(id.Namespace)),
		Name:      strings.TrimSpace(id.Name),
	}
}

// Equal compares two ids after normalization.
func (id EipID) Equal(other EipID) bool {
	return id.Normalize() == other.Normalize()
}

// Compare orders ids by namespace then name, returning -1, 0 or 1.
func (id EipID) Compare(other EipID) int {
	a, b := id.Normalize(), other.Normalize()
	if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

// ParseEipID parses "namespace:name".
func ParseEipID(s string) (EipID, error) {
	ns, name, ok := strings.Cut(s, ":")
	id := EipID{Namespace: ns, Name: name}.Normalize()
	if !ok || id.Namespace == "" || id.Name == "" {
		return EipID{}, fmt.Errorf("invalid component id %q: expected namespace:name", s)
	}
	return id, nil
}
