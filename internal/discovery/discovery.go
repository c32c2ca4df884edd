// Package discovery pulls the live model catalog from an LLM provider's API,
// so an operator can fill in the Models table from real upstream data instead
// of typing model names by hand.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"

	"github.com/solvin/controlplane/internal/registry"
)

// Settings is the connection block a provider may carry in its free-form
// extra_info field. Anything else in extra_info is ignored.
type Settings struct {
	// Type selects the client: "openai", "openai_compatible" or "anthropic".
	Type string `json:"type"`

	// BaseURL overrides the SDK default (required for openai_compatible).
	BaseURL string `json:"base_url,omitempty"`

	// APIKey is used verbatim when set. APIKeyEnv names an environment
	// variable to read instead, so templates can be shared without secrets.
	APIKey    string `json:"api_key,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"`
}

// CatalogModel is one entry of a provider's remote catalog.
type CatalogModel struct {
	ModelName   string `json:"model_name"`
	DisplayName string `json:"display_name,omitempty"`
}

// SettingsFromProvider decodes the connection block from a stored provider.
func SettingsFromProvider(p *registry.Provider) (*Settings, error) {
	if p == nil {
		return nil, errors.New("nil provider")
	}
	raw := strings.TrimSpace(p.ExtraInfo)
	if raw == "" {
		return nil, fmt.Errorf("provider %q has no connection settings in extra_info", p.ProviderName)
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("provider %q extra_info is not valid JSON: %w", p.ProviderName, err)
	}
	if strings.TrimSpace(s.Type) == "" {
		return nil, fmt.Errorf("provider %q extra_info is missing \"type\"", p.ProviderName)
	}
	return &s, nil
}

func (s *Settings) resolveAPIKey() (string, error) {
	if s == nil {
		return "", errors.New("nil settings")
	}
	if key := strings.TrimSpace(s.APIKey); key != "" {
		return key, nil
	}
	if env := strings.TrimSpace(s.APIKeyEnv); env != "" {
		if key := strings.TrimSpace(os.Getenv(env)); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("environment variable %s is empty", env)
	}
	return "", errors.New("missing api_key / api_key_env")
}

// ListModels fetches the provider's model catalog.
func ListModels(ctx context.Context, settings *Settings) ([]CatalogModel, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if settings == nil {
		return nil, errors.New("nil settings")
	}
	apiKey, err := settings.resolveAPIKey()
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(settings.BaseURL)

	switch strings.ToLower(strings.TrimSpace(settings.Type)) {
	case "openai", "openai_compatible":
		opts := []ooption.RequestOption{ooption.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, ooption.WithBaseURL(baseURL))
		}
		client := openai.NewClient(opts...)
		page, err := client.Models.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		out := make([]CatalogModel, 0, len(page.Data))
		for _, m := range page.Data {
			name := strings.TrimSpace(m.ID)
			if name == "" {
				continue
			}
			out = append(out, CatalogModel{ModelName: name})
		}
		return out, nil

	case "anthropic":
		opts := []aoption.RequestOption{aoption.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, aoption.WithBaseURL(baseURL))
		}
		client := anthropic.NewClient(opts...)
		page, err := client.Models.List(ctx, anthropic.ModelListParams{})
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		out := make([]CatalogModel, 0, len(page.Data))
		for _, m := range page.Data {
			name := strings.TrimSpace(string(m.ID))
			if name == "" {
				continue
			}
			out = append(out, CatalogModel{ModelName: name, DisplayName: strings.TrimSpace(m.DisplayName)})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported provider type %q", settings.Type)
	}
}
