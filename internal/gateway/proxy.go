package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/solvin/controlplane/internal/config"
)

// proxySet holds one reverse proxy per backend service plus the rewriting
// proxy for the configuration routes.
type proxySet struct {
	log     *slog.Logger
	version string

	// byService routes /api/<version>/<service>/... by first path segment.
	byService map[string]*httputil.ReverseProxy

	// configs rewrites /api/config/... to /config/... on the configs service.
	configs *httputil.ReverseProxy
}

func newProxySet(log *slog.Logger, version string, upstreams config.Upstreams) (*proxySet, error) {
	ps := &proxySet{
		log:       log,
		version:   version,
		byService: make(map[string]*httputil.ReverseProxy, 4),
	}

	for _, entry := range []struct {
		name string
		base string
	}{
		{"agents", upstreams.Agents},
		{"configs", upstreams.Configs},
		{"messages", upstreams.Messages},
		{"turns", upstreams.Turns},
	} {
		target, err := parseUpstream(entry.name, entry.base)
		if err != nil {
			return nil, err
		}
		ps.byService[entry.name] = ps.newProxy(target, nil)
	}

	configsTarget, err := parseUpstream("configs", upstreams.Configs)
	if err != nil {
		return nil, err
	}
	ps.configs = ps.newProxy(configsTarget, func(pr *httputil.ProxyRequest) {
		// /api/config/list -> /config/list on the configs service.
		pr.Out.URL.Path = strings.TrimPrefix(pr.In.URL.Path, "/api")
		pr.Out.URL.RawPath = ""
	})

	return ps, nil
}

func parseUpstream(name string, base string) (*url.URL, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("missing %s upstream URL", name)
	}
	target, err := url.Parse(base)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s upstream URL: %q", name, base)
	}
	return target, nil
}

// newProxy builds a path-preserving reverse proxy to target. rewritePath, if
// set, runs after the standard URL rewrite to adjust the outgoing path.
func (ps *proxySet) newProxy(target *url.URL, rewritePath func(*httputil.ProxyRequest)) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = pr.In.URL.Path
			pr.Out.URL.RawPath = pr.In.URL.RawPath
			pr.Out.Host = target.Host
			if rewritePath != nil {
				rewritePath(pr)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			ps.log.Warn("upstream request failed", "path", r.URL.Path, "upstream", target.String(), "error", err)
			writeError(w, http.StatusBadGateway, fmt.Errorf("upstream %s: %w", target.Host, err))
		},
	}
}

func (ps *proxySet) handleConfig(w http.ResponseWriter, r *http.Request) {
	ps.configs.ServeHTTP(w, r)
}

// handleVersioned proxies /api/<version>/<service>/... to the service picked
// by the first path segment, preserving method, path, query and body.
func (ps *proxySet) handleVersioned(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/" + ps.version + "/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == r.URL.Path || rest == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	service := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		service = rest[:i]
	}
	proxy, ok := ps.byService[service]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown service %q", service))
		return
	}
	proxy.ServeHTTP(w, r)
}
