package testutil

// LegacyInlineFlow is the oldest export shape: the component id lives in each
// node's data and there is no configuration table or version.
const LegacyInlineFlow = `{
  "nodes": [
    {"id": "a", "type": "eipNode", "position": {"x": 0, "y": 0},
     "data": {"eipId": {"namespace": "core", "name": "filter"}}}
  ],
  "edges": []
}`

// LegacyTreeFlow carries the per-node attribute tree that preceded eipConfigs.
const LegacyTreeFlow = `{
  "nodes": [
    {"id": "r", "type": "eipNode", "position": {"x": 10, "y": 20},
     "data": {"label": "New Node", "eipId": {"namespace": "integration", "name": "router"}}},
    {"id": "f", "type": "eipNode", "position": {"x": 200, "y": 20},
     "data": {"label": "drop-empty", "eipId": {"namespace": "integration", "name": "filter"},
              "attributes": {"expression": "payload != null"}}}
  ],
  "edges": [
    {"id": "e1", "source": "r", "target": "f"}
  ],
  "eipNodeConfigs": {
    "r": {
      "attributes": {"expression": "headers.type"},
      "children": {"mapping": {"value": "order", "channel": "orders"}},
      "description": "routes by type"
    },
    "f": {"attributes": {"throw-exception-on-rejection": true}, "children": {}}
  }
}`

// CurrentFlow is a version 1 export with a nested child.
const CurrentFlow = `{
  "version": 1,
  "nodes": [
    {"id": "n1", "type": "eipNode", "position": {"x": 0, "y": 0},
     "sourcePosition": "right", "targetPosition": "left", "data": {"label": "inbound"}},
    {"id": "n2", "type": "eipNode", "position": {"x": 300, "y": 0},
     "sourcePosition": "right", "targetPosition": "left", "data": {}}
  ],
  "edges": [
    {"id": "reactflow__edge-n1-n2", "source": "n1", "target": "n2"}
  ],
  "eipConfigs": {
    "n1": {"eipId": {"namespace": "jms", "name": "message-driven-channel-adapter"},
           "attributes": {"destination-name": "orders"}, "children": []},
    "n2": {"eipId": {"namespace": "integration", "name": "header-enricher"},
           "attributes": {}, "children": ["c1"]},
    "c1": {"eipId": {"namespace": "integration", "name": "header"},
           "attributes": {"name": "x-source"}, "children": []}
  }
}`

// FutureFlow is written by a newer schema version.
const FutureFlow = `{"version": 99, "nodes": [], "edges": [], "eipConfigs": {}}`
