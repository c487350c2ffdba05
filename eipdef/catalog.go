package eipdef

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/eipcanvas/errors"
)

//go:embed catalog/default.yaml
var defaultCatalog []byte

// DefaultCatalog returns the built-in component catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalog, FormatYAML)
}

// Format selects the catalog encoding.
type Format string

// Catalog formats
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseCatalog decodes and validates a catalog.
func ParseCatalog(data []byte, format Format) (Catalog, error) {
	var catalog Catalog
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&catalog); err != nil {
			return nil, errors.WrapInvalid(err, "eipdef", "ParseCatalog", "decode JSON catalog")
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, errors.WrapInvalid(err, "eipdef", "ParseCatalog", "decode YAML catalog")
		}
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("unknown format %q", format), "eipdef", "ParseCatalog", "select decoder")
	}

	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// LoadCatalog reads a catalog file. The format follows the file extension.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "eipdef", "LoadCatalog", "read file")
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	return ParseCatalog(data, format)
}

// Validate checks every component for a name, a known connection type, and
// well-formed attribute declarations.
func (c Catalog) Validate() error {
	for ns, comps := range c {
		if ns == "" {
			return errors.WrapInvalid(fmt.Errorf("empty namespace"), "Catalog", "Validate", "check namespace")
		}
		seen := make(map[string]bool, len(comps))
		for _, comp := range comps {
			if comp.Name == "" {
				return errors.WrapInvalid(fmt.Errorf("component without name in %s", ns), "Catalog", "Validate", "check component")
			}
			if seen[comp.Name] {
				return errors.WrapInvalid(fmt.Errorf("duplicate component %s:%s", ns, comp.Name), "Catalog", "Validate", "check component")
			}
			seen[comp.Name] = true
			if !comp.ConnectionType.Valid() {
				return errors.WrapInvalid(fmt.Errorf("%s:%s has unknown connection type %q", ns, comp.Name, comp.ConnectionType), "Catalog", "Validate", "check component")
			}
			if comp.Role != RoleEndpoint && comp.Role != RoleChannel {
				return errors.WrapInvalid(fmt.Errorf("%s:%s has unknown role %q", ns, comp.Name, comp.Role), "Catalog", "Validate", "check component")
			}
			if err := validateAttributes(ns, &comp.Element); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateAttributes(ns string, root *Element) error {
	stack := []*Element{root}
	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, a := range el.Attributes {
			switch a.Type {
			case AttrString, AttrBoolean, AttrNumber:
			default:
				return errors.WrapInvalid(fmt.Errorf("%s:%s attribute %q has unknown type %q", ns, el.Name, a.Name, a.Type), "Catalog", "Validate", "check attribute")
			}
		}
		if el.ChildGroup != nil {
			for i := range el.ChildGroup.Children {
				stack = append(stack, &el.ChildGroup.Children[i].Element)
			}
		}
	}
	return nil
}
