package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/pkg/ident"
)

// Generator produces a candidate flow as raw JSON text. onChunk receives each
// streamed fragment as it arrives and may be nil.
type Generator interface {
	Generate(ctx context.Context, req Request, onChunk func(string)) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request, onChunk func(string)) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	return f(ctx, req, onChunk)
}

// Request is the input of one generation run.
type Request struct {
	ID    string
	Input string
	// Current is the flow on the canvas, nil when the canvas is empty.
	Current *CurrentFlow
	// Components lists the known component ids as namespace:name.
	Components []string
}

// CurrentFlow is the compact view of the canvas sent to the model.
type CurrentFlow struct {
	Nodes []CurrentNode `json:"nodes"`
	Edges []flow.Edge   `json:"edges"`
}

// CurrentNode is a node reduced to its id and component.
type CurrentNode struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data CurrentNodeData `json:"data"`
}

// CurrentNodeData carries the component id of a node.
type CurrentNodeData struct {
	EipID ident.EipID `json:"eipId"`
}

// currentFlow projects v, returning nil for an empty canvas.
func currentFlow(v flow.View) *CurrentFlow {
	nodes := v.Nodes()
	if len(nodes) == 0 {
		return nil
	}
	cur := &CurrentFlow{Nodes: make([]CurrentNode, 0, len(nodes)), Edges: v.Edges()}
	for _, n := range nodes {
		eipID, _ := v.EipID(n.ID)
		cur.Nodes = append(cur.Nodes, CurrentNode{ID: n.ID, Type: n.Type, Data: CurrentNodeData{EipID: eipID}})
	}
	return cur
}

const systemPrompt = `You design enterprise integration flows.
Respond with a single JSON object of the form
{"nodes": [{"id": "...", "type": "eipNode", "position": {"x": 0, "y": 0},
  "data": {"eipId": {"namespace": "...", "name": "..."}}}],
 "edges": [{"id": "...", "source": "...", "target": "..."}]}
Use only the listed components. Do not add any text outside the JSON object.`

// Messages renders the request as a system and a user message.
func (r Request) Messages() (system, user string, err error) {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	if len(r.Components) > 0 {
		sb.WriteString("\nAvailable components: ")
		sb.WriteString(strings.Join(r.Components, ", "))
	}
	if r.Current != nil {
		data, err := json.Marshal(r.Current)
		if err != nil {
			return "", "", fmt.Errorf("encode current flow: %w", err)
		}
		sb.WriteString("\nUpdate this existing flow and return the complete result:\n")
		sb.Write(data)
	}
	return sb.String(), r.Input, nil
}
