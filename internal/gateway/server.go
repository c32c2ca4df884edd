// Package gateway is the HTTP surface of the control plane: CRUD routes over
// the local registry, template import/export, and reverse proxies to the
// backend services.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/solvin/controlplane/internal/config"
	"github.com/solvin/controlplane/internal/monitor"
	"github.com/solvin/controlplane/internal/registry"
	"github.com/solvin/controlplane/internal/template"
)

type Options struct {
	Logger *slog.Logger

	// ListenAddr is the local address the server binds, e.g. "127.0.0.1:8100".
	ListenAddr string

	Store     *registry.Store
	Templates *template.Manager

	// ToolsDir is scanned by /api/tools. Empty yields an empty tool list.
	ToolsDir string

	// LogFile is tailed by /api/logs. Empty yields empty content.
	LogFile string

	// APIVersion is the version segment interpolated into proxied paths.
	APIVersion string

	// Upstreams are the backend base URLs the proxy routes resolve against.
	Upstreams config.Upstreams

	// Monitor supplies the /api/status host snapshot. Optional.
	Monitor *monitor.Service
}

type Server struct {
	log *slog.Logger

	listenAddr string
	toolsDir   string
	logFile    string
	apiVersion string

	store     *registry.Store
	templates *template.Manager
	mon       *monitor.Service

	proxies *proxySet

	ln  net.Listener
	srv *http.Server
}

func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("missing Store")
	}
	if opts.Templates == nil {
		return nil, errors.New("missing Templates")
	}
	addr := strings.TrimSpace(opts.ListenAddr)
	if addr == "" {
		return nil, errors.New("missing ListenAddr")
	}
	version := strings.TrimSpace(opts.APIVersion)
	if version == "" {
		version = "v1"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	proxies, err := newProxySet(logger, version, opts.Upstreams)
	if err != nil {
		return nil, err
	}

	return &Server{
		log:        logger,
		listenAddr: addr,
		toolsDir:   strings.TrimSpace(opts.ToolsDir),
		logFile:    strings.TrimSpace(opts.LogFile),
		apiVersion: version,
		store:      opts.Store,
		templates:  opts.Templates,
		mon:        opts.Monitor,
		proxies:    proxies,
	}, nil
}

// Handler returns the route table. It is split from Start so tests can drive
// the mux through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent-roles", s.handleAgentRoles)
	mux.HandleFunc("/api/model-providers", s.handleProviders)
	mux.HandleFunc("/api/model-providers/catalog", s.handleProviderCatalog)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tools", s.handleTools)
	mux.HandleFunc("/api/templates/list", s.handleTemplateList)
	mux.HandleFunc("/api/templates/export", s.handleTemplateExport)
	mux.HandleFunc("/api/templates/import", s.handleTemplateImport)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config/list", s.proxies.handleConfig)
	mux.HandleFunc("/api/config/bulk_set", s.proxies.handleConfig)
	mux.HandleFunc("/api/config/scopes", s.proxies.handleConfig)
	mux.HandleFunc("/api/"+s.apiVersion+"/", s.proxies.handleVersioned)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listenAddr, err)
	}

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("control plane server stopped", "error", err)
		}
	}()

	s.log.Info("control plane listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	}
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.srv = nil
	s.ln = nil
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
