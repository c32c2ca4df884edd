package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func newCaptureUpstream(t *testing.T) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.Query = r.URL.RawQuery
		captured.Body = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"upstream":true}`))
	}))
	t.Cleanup(up.Close)
	return up, captured
}

func TestProxy_ConfigRoutesRewriteToConfigsService(t *testing.T) {
	t.Parallel()
	up, captured := newCaptureUpstream(t)
	env := newTestEnv(t, up.URL)

	resp, err := http.Get(env.srv.URL + "/api/config/list?scope=service.agents")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTeapot {
		t.Fatalf("status=%d, want upstream status relayed", resp.StatusCode)
	}
	if captured.Path != "/config/list" {
		t.Fatalf("upstream path=%q, want /config/list", captured.Path)
	}
	if captured.Query != "scope=service.agents" {
		t.Fatalf("upstream query=%q", captured.Query)
	}

	body, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil || out["upstream"] != true {
		t.Fatalf("body=%s, want upstream body relayed", body)
	}
}

func TestProxy_ConfigBulkSetForwardsBody(t *testing.T) {
	t.Parallel()
	up, captured := newCaptureUpstream(t)
	env := newTestEnv(t, up.URL)

	payload := `{"scope":"global","values":{"k":"v"}}`
	resp, err := http.Post(env.srv.URL+"/api/config/bulk_set", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()

	if captured.Method != http.MethodPost {
		t.Fatalf("upstream method=%q", captured.Method)
	}
	if captured.Path != "/config/bulk_set" {
		t.Fatalf("upstream path=%q", captured.Path)
	}
	if captured.Body != payload {
		t.Fatalf("upstream body=%q", captured.Body)
	}
}

func TestProxy_VersionedRoutePreservesPath(t *testing.T) {
	t.Parallel()
	up, captured := newCaptureUpstream(t)
	env := newTestEnv(t, up.URL)

	resp, err := http.Get(env.srv.URL + "/api/v1/agents/list?status=running")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if captured.Path != "/api/v1/agents/list" {
		t.Fatalf("upstream path=%q, want /api/v1/agents/list", captured.Path)
	}
	if captured.Query != "status=running" {
		t.Fatalf("upstream query=%q", captured.Query)
	}
}

func TestProxy_UnknownServiceIs404(t *testing.T) {
	t.Parallel()
	up, _ := newCaptureUpstream(t)
	env := newTestEnv(t, up.URL)

	resp, body := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/billing/list", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", resp.StatusCode)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "billing") {
		t.Fatalf("error=%v", body["error"])
	}
}

func TestProxy_UpstreamDownIs502(t *testing.T) {
	t.Parallel()
	// Port 1 refuses connections on any sane host.
	env := newTestEnv(t, "http://127.0.0.1:1")

	resp, body := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/agents/list", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status=%d, want 502", resp.StatusCode)
	}
	if _, ok := body["error"]; !ok {
		t.Fatalf("body=%v, want error field", body)
	}
}
