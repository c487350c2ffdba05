package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/pkg/ident"
)

// Component ids from the default catalog used across tests.
var (
	Filter         = ident.EipID{Namespace: "integration", Name: "filter"}
	Router         = ident.EipID{Namespace: "integration", Name: "router"}
	Mapping        = ident.EipID{Namespace: "integration", Name: "mapping"}
	HeaderEnricher = ident.EipID{Namespace: "integration", Name: "header-enricher"}
	Header         = ident.EipID{Namespace: "integration", Name: "header"}
	Script         = ident.EipID{Namespace: "integration", Name: "script"}
	Logger         = ident.EipID{Namespace: "integration", Name: "logging-channel-adapter"}
	JMSInbound     = ident.EipID{Namespace: "jms", Name: "message-driven-channel-adapter"}
	BrokenRouter   = ident.EipID{Namespace: "test", Name: "channel-only-router"}
)

// Registry returns a registry over the default catalog.
func Registry(t testing.TB) *eipdef.Registry {
	t.Helper()
	catalog, err := eipdef.DefaultCatalog()
	require.NoError(t, err)
	return eipdef.NewRegistry(catalog)
}

// RegistryWithBrokenRouter returns a registry over the default catalog plus a "test"
// namespace holding a router whose mapping child declares only the channel
// attribute.
func RegistryWithBrokenRouter(t testing.TB) *eipdef.Registry {
	t.Helper()
	catalog, err := eipdef.DefaultCatalog()
	require.NoError(t, err)

	extra, err := eipdef.ParseCatalog([]byte(BrokenRouterCatalog), eipdef.FormatYAML)
	require.NoError(t, err)
	for ns, comps := range extra {
		catalog[ns] = comps
	}
	return eipdef.NewRegistry(catalog)
}

// BrokenRouterCatalog declares a router without a value matcher attribute.
const BrokenRouterCatalog = `
test:
  - name: channel-only-router
    role: endpoint
    connectionType: content_based_router
    childGroup:
      indicator: sequence
      children:
        - name: mapping
          attributes:
            - name: channel
              type: string
`
