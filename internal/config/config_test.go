package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != defaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, defaultListenAddr)
	}
	if cfg.APIVersion != "v1" {
		t.Fatalf("APIVersion=%q, want v1", cfg.APIVersion)
	}
	if cfg.Upstreams.Messages != cfg.Upstreams.Agents {
		t.Fatalf("Messages=%q, want agents fallback %q", cfg.Upstreams.Messages, cfg.Upstreams.Agents)
	}
	if cfg.Upstreams.Turns != cfg.Upstreams.Agents {
		t.Fatalf("Turns=%q, want agents fallback %q", cfg.Upstreams.Turns, cfg.Upstreams.Agents)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controlplane.json")
	body := `{"listen_addr":"127.0.0.1:9000","db_path":"` + filepath.ToSlash(filepath.Join(dir, "db.sqlite")) + `","upstreams":{"agents":"http://file-agents:1"}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SOLVIN_AGENTS_URL", "http://env-agents:2")
	t.Setenv("SOLVIN_API_VERSION", "v2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr=%q, want file value", cfg.ListenAddr)
	}
	if cfg.Upstreams.Agents != "http://env-agents:2" {
		t.Fatalf("Agents=%q, want env override", cfg.Upstreams.Agents)
	}
	if cfg.APIVersion != "v2" {
		t.Fatalf("APIVersion=%q, want v2", cfg.APIVersion)
	}
	if cfg.Upstreams.Messages != "http://env-agents:2" {
		t.Fatalf("Messages=%q, want agents fallback after override", cfg.Upstreams.Messages)
	}
}

func TestValidate_RejectsBadUpstream(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ListenAddr:   "127.0.0.1:8100",
		DBPath:       "x.sqlite",
		TemplatesDir: "templates",
		APIVersion:   "v1",
		Upstreams: Upstreams{
			Agents:   "not a url",
			Configs:  "http://ok:1",
			Messages: "http://ok:1",
			Turns:    "http://ok:1",
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate accepted invalid agents URL")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controlplane.json")

	in := &Config{
		ListenAddr:   "127.0.0.1:8111",
		DBPath:       filepath.Join(dir, "db.sqlite"),
		TemplatesDir: filepath.Join(dir, "templates"),
		APIVersion:   "v1",
		Upstreams: Upstreams{
			Agents:   "http://a:1",
			Configs:  "http://c:1",
			Messages: "http://m:1",
			Turns:    "http://t:1",
		},
		LogFormat: "json",
		LogLevel:  "debug",
	}
	if err := Save(path, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.ListenAddr != in.ListenAddr || out.Upstreams.Turns != in.Upstreams.Turns || out.LogFormat != "json" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
