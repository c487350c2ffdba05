package eipdef

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/pkg/ident"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	return NewRegistry(catalog)
}

func TestDefaultCatalog(t *testing.T) {
	r := defaultRegistry(t)

	router, ok := r.Lookup(ident.EipID{Namespace: "integration", Name: "router"})
	require.True(t, ok)
	assert.Equal(t, ConnectionContentBasedRouter, router.ConnectionType)
	assert.Equal(t, RoleEndpoint, router.Role)

	mapping, ok := router.Child("mapping")
	require.True(t, ok)
	_, ok = mapping.Attribute("channel")
	assert.True(t, ok)

	filter, ok := r.Lookup(ident.EipID{Namespace: "integration", Name: "filter"})
	require.True(t, ok)
	assert.Equal(t, ConnectionPassthru, filter.ConnectionType)

	assert.Equal(t, []string{"http", "integration", "jms"}, r.Namespaces())
	assert.Contains(t, r.Components("jms"), "outbound-gateway")
}

func TestRegistry_LookupElement(t *testing.T) {
	r := defaultRegistry(t)

	t.Run("child resolves under parent namespace", func(t *testing.T) {
		el, ok := r.LookupElement(ident.EipID{Namespace: "integration", Name: "script"})
		require.True(t, ok)
		assert.Equal(t, "script", el.Name)
	})

	t.Run("component is not returned by child lookup", func(t *testing.T) {
		_, ok := r.Lookup(ident.EipID{Namespace: "integration", Name: "mapping"})
		assert.False(t, ok)
	})

	t.Run("missing definition", func(t *testing.T) {
		_, ok := r.LookupElement(ident.EipID{Namespace: "nope", Name: "x"})
		assert.False(t, ok)
	})
}

func TestRegistry_ValidateAttribute(t *testing.T) {
	r := defaultRegistry(t)
	logger := ident.EipID{Namespace: "integration", Name: "logging-channel-adapter"}
	filter := ident.EipID{Namespace: "integration", Name: "filter"}

	tests := []struct {
		name    string
		id      ident.EipID
		attr    string
		value   Value
		wantErr bool
	}{
		{"string ok", filter, "expression", String("payload != null"), false},
		{"boolean ok", filter, "throw-exception-on-rejection", Bool(true), false},
		{"wrong type", filter, "throw-exception-on-rejection", String("yes"), true},
		{"enum member", logger, "level", String("INFO"), false},
		{"enum outsider", logger, "level", String("VERBOSE"), true},
		{"unknown attribute", filter, "nope", String("x"), true},
		{"unknown element", ident.EipID{Namespace: "x", Name: "y"}, "a", String("x"), true},
		{"child number", ident.EipID{Namespace: "integration", Name: "queue"}, "capacity", Number(10), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.ValidateAttribute(tt.id, tt.attr, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValue_JSON(t *testing.T) {
	var attrs map[string]Value
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":3.5,"c":false}`), &attrs))

	s, ok := attrs["a"].Str()
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	n, ok := attrs["b"].Num()
	assert.True(t, ok)
	assert.Equal(t, 3.5, n)
	b, ok := attrs["c"].Boolean()
	assert.True(t, ok)
	assert.False(t, b)

	out, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":3.5,"c":false}`, string(out))

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"nested":true}`), &v))
	assert.Equal(t, "3.5", Number(3.5).Text())
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"bad connection type", `{"core":[{"name":"a","role":"endpoint","connectionType":"bogus"}]}`, FormatJSON},
		{"bad role", `{"core":[{"name":"a","role":"queue","connectionType":"sink"}]}`, FormatJSON},
		{"duplicate", `{"core":[{"name":"a","role":"endpoint","connectionType":"sink"},{"name":"a","role":"endpoint","connectionType":"sink"}]}`, FormatJSON},
		{"bad attribute type", "core:\n  - name: a\n    role: endpoint\n    connectionType: sink\n    attributes:\n      - name: x\n        type: date\n", FormatYAML},
		{"unknown field", `{"core":[{"name":"a","role":"endpoint","connectionType":"sink","colour":"red"}]}`, FormatJSON},
		{"unknown format", `{}`, Format("toml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_JSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.json")
	data := `{"core":[{"name":"filter","role":"endpoint","connectionType":"passthru","attributes":[{"name":"expression","type":"string"}]}]}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	r := NewRegistry(catalog)
	c, ok := r.Lookup(ident.EipID{Namespace: "core", Name: "filter"})
	require.True(t, ok)
	assert.Len(t, c.Attributes, 1)
}
