package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360/eipcanvas/eipdef"
	"github.com/c360/eipcanvas/errors"
	"github.com/c360/eipcanvas/flow"
	"github.com/c360/eipcanvas/layout"
	"github.com/c360/eipcanvas/pkg/ident"
)

// maxBodySize bounds request bodies, imports included.
const maxBodySize = 16 << 20

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, err error, data any) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Flow document

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="flow.json"`)
	writeJSON(w, http.StatusOK, s.store.Export())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeJSONError(w, fmt.Sprintf("read request body: %v", err), http.StatusBadRequest)
		return
	}
	res, err := s.store.Import(raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClearFlow(w http.ResponseWriter, r *http.Request) {
	s.store.ClearFlow()
	s.respond(w, r, nil, nil)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateView(s.store.Snapshot()))
}

// Diagramming surface contract

func (s *Server) handleNodesChange(w http.ResponseWriter, r *http.Request) {
	var changes []flow.NodeChange
	if !decode(w, r, &changes) {
		return
	}
	s.respond(w, r, s.store.OnNodesChange(changes), nil)
}

func (s *Server) handleEdgesChange(w http.ResponseWriter, r *http.Request) {
	var changes []flow.EdgeChange
	if !decode(w, r, &changes) {
		return
	}
	s.respond(w, r, s.store.OnEdgesChange(changes), nil)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var conn flow.Connection
	if !decode(w, r, &conn) {
		return
	}
	edge, err := s.store.OnConnect(conn)
	s.respond(w, r, err, edge)
}

// Store commands

type createNodeRequest struct {
	EipID    ident.EipID  `json:"eipId"`
	Position layout.Point `json:"position"`
}

type idResponse struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.EipID.Normalize().IsZero() {
		writeJSONError(w, "eipId is required", http.StatusBadRequest)
		return
	}
	if s.defs != nil {
		if _, ok := s.defs.Lookup(req.EipID); !ok {
			writeJSONError(w, fmt.Sprintf("unknown component %s", req.EipID), http.StatusBadRequest)
			return
		}
	}
	id := s.store.CreateRootNode(req.EipID.Normalize(), req.Position)
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, r, s.store.UpdateLabel(r.PathValue("id"), req.Label), nil)
}

func (s *Server) handleUpdateDescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, r, s.store.UpdateDescription(r.PathValue("id"), req.Description), nil)
}

type attributeRequest struct {
	// ParentID is the parent config id, or flow.RootParent for root nodes.
	ParentID string       `json:"parentId"`
	Value    eipdef.Value `json:"value"`
}

func (s *Server) handleUpdateAttribute(w http.ResponseWriter, r *http.Request) {
	var req attributeRequest
	if !decode(w, r, &req) {
		return
	}
	id, name := r.PathValue("id"), r.PathValue("name")
	if req.ParentID == "" {
		req.ParentID = flow.RootParent
	}
	if err := s.validateAttribute(id, name, req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.respond(w, r, s.store.UpdateAttribute(id, req.ParentID, name, req.Value), nil)
}

// validateAttribute checks value against the definition of the element
// configured at id. Unknown ids are left to the store to report.
func (s *Server) validateAttribute(id, name string, value eipdef.Value) error {
	if s.defs == nil {
		return nil
	}
	eipID, ok := s.store.EipID(id)
	if !ok {
		return nil
	}
	return s.defs.ValidateAttribute(eipID, name, value)
}

func (s *Server) handleDeleteAttribute(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.store.DeleteAttribute(r.PathValue("id"), r.PathValue("name")), nil)
}

func (s *Server) handleEnableChild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EipID ident.EipID `json:"eipId"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, err := s.store.EnableChild(r.PathValue("id"), req.EipID.Normalize())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleDisableChild(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, s.store.DisableChild(r.PathValue("id"), r.PathValue("child")), nil)
}

func (s *Server) handleSetRouterKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string       `json:"name"`
		Attribute string       `json:"attribute"`
		Value     eipdef.Value `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, r, s.store.SetRouterKey(r.PathValue("id"), req.Name, req.Attribute, req.Value), nil)
}

type mappingRequest struct {
	MapperName *string           `json:"mapperName"`
	Matcher    *eipdef.Attribute `json:"matcher"`
	Value      *string           `json:"value"`
}

func (s *Server) handleUpdateEdgeMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingRequest
	if !decode(w, r, &req) {
		return
	}
	err := s.store.UpdateEdgeMapping(r.PathValue("id"), flow.MappingUpdate{
		MapperName: req.MapperName,
		Matcher:    req.Matcher,
		Value:      req.Value,
	})
	s.respond(w, r, err, nil)
}

func (s *Server) handleSelectChild(w http.ResponseWriter, r *http.Request) {
	var req idResponse
	if !decode(w, r, &req) {
		return
	}
	s.respond(w, r, s.store.SelectChild(req.ID), nil)
}

func (s *Server) handleClearChildSelection(w http.ResponseWriter, r *http.Request) {
	s.store.ClearChildSelection()
	s.respond(w, r, nil, nil)
}

func (s *Server) handleClearSelections(w http.ResponseWriter, r *http.Request) {
	s.store.ClearDiagramSelections()
	s.respond(w, r, nil, nil)
}

func (s *Server) handleSetOrientation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Orientation layout.Orientation `json:"orientation"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SetLayoutOrientation(req.Orientation); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Layout())
}

func (s *Server) handleCycleDensity(w http.ResponseWriter, _ *http.Request) {
	s.store.CycleLayoutDensity()
	writeJSON(w, http.StatusOK, s.store.Layout())
}

// Component catalog

func (s *Server) handleListDefinitions(w http.ResponseWriter, _ *http.Request) {
	if s.defs == nil {
		writeJSONError(w, "no component catalog configured", http.StatusNotFound)
		return
	}
	catalog := make(map[string][]*eipdef.Component)
	for _, ns := range s.defs.Namespaces() {
		for _, name := range s.defs.Components(ns) {
			if c, ok := s.defs.Lookup(ident.EipID{Namespace: ns, Name: name}); ok {
				catalog[ns] = append(catalog[ns], c)
			}
		}
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleGetDefinition(w http.ResponseWriter, r *http.Request) {
	if s.defs == nil {
		writeJSONError(w, "no component catalog configured", http.StatusNotFound)
		return
	}
	id := ident.EipID{Namespace: r.PathValue("namespace"), Name: r.PathValue("name")}
	c, ok := s.defs.Lookup(id)
	if !ok {
		writeJSONError(w, fmt.Sprintf("unknown component %s", id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Assistant

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeJSONError(w, "assistant is not enabled", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Input string `json:"input"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Input == "" {
		writeJSONError(w, "input is required", http.StatusBadRequest)
		return
	}

	// Generation outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	res, err := s.assistant.Prompt(r.Context(), req.Input, nil)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			// Generator failures are upstream failures, not ours.
			status = http.StatusBadGateway
			if errors.IsInvalid(err) {
				status = http.StatusBadRequest
			}
		}
		s.logger.Warn("Prompt failed", "request_id", res.RequestID, "cause", res.Cause, "error", err)
		writeJSON(w, status, map[string]any{"error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAbortPrompt(w http.ResponseWriter, r *http.Request) {
	if s.assistant == nil {
		writeJSONError(w, "assistant is not enabled", http.StatusServiceUnavailable)
		return
	}
	s.assistant.Abort()
	s.respond(w, r, nil, nil)
}
