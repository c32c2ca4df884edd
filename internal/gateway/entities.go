package gateway

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/solvin/controlplane/internal/registry"
)

func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// handleAgentRoles serves /api/agent-roles.
//
// A GET for an unknown agent_role returns a synthesized blank record with
// HTTP 200 rather than 404: the editor UI opens the form for a new role by
// requesting it by name.
func (s *Server) handleAgentRoles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		name := strings.TrimSpace(r.URL.Query().Get("agent_role"))
		if name == "" {
			roles, err := s.store.ListAgentRoles(ctx)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"agents": roles})
			return
		}
		role, err := s.store.GetAgentRole(ctx, name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if role == nil {
			blank := registry.BlankAgentRole(name)
			writeJSON(w, http.StatusOK, map[string]any{"agent": blank})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agent": role})

	case http.MethodPost, http.MethodPut:
		var payload registry.AgentRole
		if err := decodeBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(payload.AgentRole) == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing agent_role"))
			return
		}
		role, err := s.store.UpsertAgentRole(ctx, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"agent": role})

	case http.MethodDelete:
		name := strings.TrimSpace(r.URL.Query().Get("agent_role"))
		if name == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing agent_role"))
			return
		}
		err := s.store.DeleteAgentRole(ctx, name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, errors.New("agent role not found"))
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		}

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		rawID := strings.TrimSpace(r.URL.Query().Get("id"))
		if rawID == "" {
			providers, err := s.store.ListProviders(ctx)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
			return
		}
		id, err := parseID(rawID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		p, err := s.store.GetProvider(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if p == nil {
			writeError(w, http.StatusNotFound, errors.New("provider not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"provider": p})

	case http.MethodPost, http.MethodPut:
		var payload registry.Provider
		if err := decodeBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(payload.ProviderName) == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing provider_name"))
			return
		}
		p, err := s.store.UpsertProvider(ctx, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"provider": p})

	case http.MethodDelete:
		id, err := parseID(r.URL.Query().Get("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = s.store.DeleteProvider(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, errors.New("provider not found"))
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		}

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

// modelPayload mirrors registry.Model with supports_reasoning as a pointer so
// an omitted field defaults to enabled instead of false.
type modelPayload struct {
	ID                int64  `json:"id"`
	ProviderID        int64  `json:"provider_id"`
	ModelName         string `json:"model_name"`
	DisplayName       string `json:"display_name"`
	ExtraInfo         string `json:"extra_info"`
	SupportsReasoning *bool  `json:"supports_reasoning"`
}

func (p modelPayload) toModel() registry.Model {
	supports := true
	if p.SupportsReasoning != nil {
		supports = *p.SupportsReasoning
	}
	return registry.Model{
		ID:                p.ID,
		ProviderID:        p.ProviderID,
		ModelName:         p.ModelName,
		DisplayName:       p.DisplayName,
		ExtraInfo:         p.ExtraInfo,
		SupportsReasoning: supports,
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		rawID := strings.TrimSpace(r.URL.Query().Get("id"))
		if rawID == "" {
			models, err := s.store.ListModels(ctx)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"models": models})
			return
		}
		id, err := parseID(rawID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		m, err := s.store.GetModel(ctx, id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if m == nil {
			writeError(w, http.StatusNotFound, errors.New("model not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": m})

	case http.MethodPost, http.MethodPut:
		var payload modelPayload
		if err := decodeBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(payload.ModelName) == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing model_name"))
			return
		}
		if payload.ProviderID <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("missing provider_id"))
			return
		}
		m, err := s.store.UpsertModel(ctx, payload.toModel())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": m})

	case http.MethodDelete:
		id, err := parseID(r.URL.Query().Get("id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		err = s.store.DeleteModel(ctx, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, errors.New("model not found"))
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		}

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		rawID := strings.TrimSpace(r.URL.Query().Get("id"))
		name := strings.TrimSpace(r.URL.Query().Get("task_name"))
		if rawID == "" && name == "" {
			tasks, err := s.store.ListTasks(ctx)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
			return
		}
		var (
			task *registry.Task
			err  error
		)
		if rawID != "" {
			var id int64
			id, err = parseID(rawID)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			task, err = s.store.GetTask(ctx, id)
		} else {
			task, err = s.store.GetTaskByName(ctx, name)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if task == nil {
			writeError(w, http.StatusNotFound, errors.New("task not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": task})

	case http.MethodPost, http.MethodPut:
		var payload registry.Task
		if err := decodeBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if strings.TrimSpace(payload.TaskName) == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing task_name"))
			return
		}
		task, err := s.store.UpsertTask(ctx, payload)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"task": task})

	case http.MethodDelete:
		rawID := strings.TrimSpace(r.URL.Query().Get("id"))
		name := strings.TrimSpace(r.URL.Query().Get("task_name"))
		var err error
		switch {
		case rawID != "":
			var id int64
			id, err = parseID(rawID)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			err = s.store.DeleteTask(ctx, id)
		case name != "":
			err = s.store.DeleteTaskByName(ctx, name)
		default:
			writeError(w, http.StatusBadRequest, errors.New("missing id or task_name"))
			return
		}
		switch {
		case errors.Is(err, sql.ErrNoRows):
			writeError(w, http.StatusNotFound, errors.New("task not found"))
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		}

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
	}
}
