package gateway

import (
	"errors"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/solvin/controlplane/internal/discovery"
)

const (
	toolFilePrefix = "tool_"
	toolFileSuffix = ".py"

	defaultLogLines = 200
	maxLogLines     = 5000
)

// handleTools lists tool identifiers by scanning the tools directory for
// tool_<name>.py files and stripping the prefix and suffix.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	tools := []string{}
	if s.toolsDir != "" {
		entries, err := os.ReadDir(s.toolsDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if !strings.HasPrefix(name, toolFilePrefix) || !strings.HasSuffix(name, toolFileSuffix) {
				continue
			}
			tool := strings.TrimSuffix(strings.TrimPrefix(name, toolFilePrefix), toolFileSuffix)
			if tool == "" {
				continue
			}
			tools = append(tools, tool)
		}
	}
	sort.Strings(tools)
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	names, err := s.templates.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": names})
}

func (s *Server) handleTemplateExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing name"))
		return
	}
	if err := s.templates.Export(r.Context(), name); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTemplateImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing name"))
		return
	}
	// Imports wipe by default; ?wipe=false merges into the existing rows.
	wipe := true
	if raw := strings.TrimSpace(r.URL.Query().Get("wipe")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid wipe"))
			return
		}
		wipe = parsed
	}
	if err := s.templates.Import(r.Context(), name, wipe); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLogs returns the tail of the configured log file. A missing or
// unconfigured file yields empty content rather than an error, since the log
// path depends on how the process was launched.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	lines := defaultLogLines
	if raw := strings.TrimSpace(r.URL.Query().Get("lines")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid lines"))
			return
		}
		lines = n
	}
	if lines > maxLogLines {
		lines = maxLogLines
	}

	content := ""
	if s.logFile != "" {
		b, err := os.ReadFile(s.logFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
			return
		default:
			content = tailLines(string(b), lines)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func tailLines(content string, n int) string {
	content = strings.TrimRight(content, "\n")
	if content == "" {
		return ""
	}
	all := strings.Split(content, "\n")
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return strings.Join(all, "\n")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.mon == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("status monitor not enabled"))
		return
	}
	writeJSON(w, http.StatusOK, s.mon.Snapshot(r.Context()))
}

// handleProviderCatalog fetches the live model catalog of a stored provider,
// so the models form can offer real upstream names.
func (s *Server) handleProviderCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	id, err := parseID(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.store.GetProvider(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, errors.New("provider not found"))
		return
	}
	settings, err := discovery.SettingsFromProvider(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	models, err := discovery.ListModels(r.Context(), settings)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}
