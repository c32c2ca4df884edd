package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config is the on-disk configuration for the control plane.
//
// Every field can be overridden through SOLVIN_* environment variables, so a
// deployment can run with no config file at all.
type Config struct {
	// ListenAddr is the local HTTP listen address.
	ListenAddr string `json:"listen_addr,omitempty"`

	// DBPath is the path to the shared SQLite file holding providers, models,
	// agent roles and tasks.
	DBPath string `json:"db_path,omitempty"`

	// TemplatesDir holds one subdirectory per named template.
	TemplatesDir string `json:"templates_dir,omitempty"`

	// ToolsDir is scanned for tool_<name>.py files by the /api/tools route.
	ToolsDir string `json:"tools_dir,omitempty"`

	// LogFile is the file tailed by /api/logs. Empty disables the route.
	LogFile string `json:"log_file,omitempty"`

	// APIVersion is the version segment interpolated into upstream paths
	// (e.g. "v1" for /api/v1/agents/...).
	APIVersion string `json:"api_version,omitempty"`

	// Upstreams are the base URLs of the backend services this plane proxies to.
	Upstreams Upstreams `json:"upstreams"`

	// LogFormat is "json" or "text".
	LogFormat string `json:"log_format,omitempty"`
	// LogLevel is "debug|info|warn|error".
	LogLevel string `json:"log_level,omitempty"`
}

// Upstreams maps the proxied route families to backend base URLs.
//
// Messages and turns live in the agents service in the default deployment,
// but are kept as separate entries so they can be split out later.
type Upstreams struct {
	Agents   string `json:"agents,omitempty"`
	Configs  string `json:"configs,omitempty"`
	Messages string `json:"messages,omitempty"`
	Turns    string `json:"turns,omitempty"`
}

const (
	defaultListenAddr = "127.0.0.1:8100"
	defaultAPIVersion = "v1"

	defaultAgentsURL  = "http://127.0.0.1:8020"
	defaultConfigsURL = "http://127.0.0.1:8010"
)

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("missing listen_addr")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("missing db_path")
	}
	if strings.TrimSpace(c.TemplatesDir) == "" {
		return errors.New("missing templates_dir")
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		return errors.New("missing api_version")
	}
	for _, u := range []struct {
		name  string
		value string
	}{
		{"upstreams.agents", c.Upstreams.Agents},
		{"upstreams.configs", c.Upstreams.Configs},
		{"upstreams.messages", c.Upstreams.Messages},
		{"upstreams.turns", c.Upstreams.Turns},
	} {
		v := strings.TrimSpace(u.value)
		if v == "" {
			return fmt.Errorf("missing %s base URL", u.name)
		}
		parsed, err := url.Parse(v)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("invalid %s base URL: %q", u.name, v)
		}
	}
	switch strings.TrimSpace(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log_format: %q", c.LogFormat)
	}
	switch strings.TrimSpace(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	return nil
}

// DefaultConfigPath returns the default config path:
//
//	~/.solvin/controlplane.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "controlplane.json"
	}
	return filepath.Join(home, ".solvin", "controlplane.json")
}

// Load reads the config file at path (if it exists), applies environment
// overrides and defaults, and validates the result.
//
// A missing file is not an error: env vars and defaults alone are a valid
// deployment.
func Load(path string) (*Config, error) {
	var cfg Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("invalid config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env + defaults only
		default:
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrideString(&c.ListenAddr, "SOLVIN_LISTEN_ADDR")
	overrideString(&c.DBPath, "SOLVIN_DB_PATH")
	overrideString(&c.TemplatesDir, "SOLVIN_TEMPLATES_DIR")
	overrideString(&c.ToolsDir, "SOLVIN_TOOLS_DIR")
	overrideString(&c.LogFile, "SOLVIN_LOG_FILE")
	overrideString(&c.APIVersion, "SOLVIN_API_VERSION")
	overrideString(&c.Upstreams.Agents, "SOLVIN_AGENTS_URL")
	overrideString(&c.Upstreams.Configs, "SOLVIN_CONFIGS_URL")
	overrideString(&c.Upstreams.Messages, "SOLVIN_MESSAGES_URL")
	overrideString(&c.Upstreams.Turns, "SOLVIN_TURNS_URL")
	overrideString(&c.LogFormat, "SOLVIN_LOG_FORMAT")
	overrideString(&c.LogLevel, "SOLVIN_LOG_LEVEL")
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddr) == "" {
		c.ListenAddr = defaultListenAddr
	}
	if strings.TrimSpace(c.DBPath) == "" {
		c.DBPath = filepath.Join(dataDir(), "controlplane.sqlite")
	}
	if strings.TrimSpace(c.TemplatesDir) == "" {
		c.TemplatesDir = filepath.Join(dataDir(), "templates")
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		c.APIVersion = defaultAPIVersion
	}
	if strings.TrimSpace(c.Upstreams.Agents) == "" {
		c.Upstreams.Agents = defaultAgentsURL
	}
	if strings.TrimSpace(c.Upstreams.Configs) == "" {
		c.Upstreams.Configs = defaultConfigsURL
	}
	// Messages and turns are served by the agents service unless split out.
	if strings.TrimSpace(c.Upstreams.Messages) == "" {
		c.Upstreams.Messages = c.Upstreams.Agents
	}
	if strings.TrimSpace(c.Upstreams.Turns) == "" {
		c.Upstreams.Turns = c.Upstreams.Agents
	}
	if strings.TrimSpace(c.LogFormat) == "" {
		c.LogFormat = "text"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return "."
	}
	return filepath.Join(home, ".solvin")
}

// Save writes the config atomically.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
