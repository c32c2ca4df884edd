package discovery

import (
	"context"
	"strings"
	"testing"

	"github.com/solvin/controlplane/internal/registry"
)

func TestSettingsFromProvider(t *testing.T) {
	t.Parallel()

	_, err := SettingsFromProvider(&registry.Provider{ProviderName: "openai"})
	if err == nil {
		t.Fatalf("accepted provider without extra_info")
	}

	_, err = SettingsFromProvider(&registry.Provider{ProviderName: "openai", ExtraInfo: "not json"})
	if err == nil {
		t.Fatalf("accepted non-JSON extra_info")
	}

	_, err = SettingsFromProvider(&registry.Provider{ProviderName: "openai", ExtraInfo: `{"base_url":"http://x"}`})
	if err == nil || !strings.Contains(err.Error(), "type") {
		t.Fatalf("err=%v, want missing type", err)
	}

	s, err := SettingsFromProvider(&registry.Provider{
		ProviderName: "openai",
		ExtraInfo:    `{"type":"openai","api_key_env":"OPENAI_API_KEY","note":"ignored"}`,
	})
	if err != nil {
		t.Fatalf("SettingsFromProvider: %v", err)
	}
	if s.Type != "openai" || s.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("settings=%+v", s)
	}
}

func TestResolveAPIKey(t *testing.T) {
	s := &Settings{APIKey: " sk-test "}
	key, err := s.resolveAPIKey()
	if err != nil || key != "sk-test" {
		t.Fatalf("key=%q err=%v", key, err)
	}

	s = &Settings{APIKeyEnv: "SOLVIN_TEST_DISCOVERY_KEY"}
	if _, err := s.resolveAPIKey(); err == nil {
		t.Fatalf("resolved key from empty env var")
	}
	t.Setenv("SOLVIN_TEST_DISCOVERY_KEY", "sk-env")
	key, err = s.resolveAPIKey()
	if err != nil || key != "sk-env" {
		t.Fatalf("key=%q err=%v", key, err)
	}

	s = &Settings{}
	if _, err := s.resolveAPIKey(); err == nil {
		t.Fatalf("resolved key with no source")
	}
}

func TestListModels_RejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := ListModels(context.Background(), &Settings{Type: "bedrock", APIKey: "x"})
	if err == nil || !strings.Contains(err.Error(), "unsupported provider type") {
		t.Fatalf("err=%v, want unsupported provider type", err)
	}
}

func TestListModels_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := ListModels(context.Background(), &Settings{Type: "openai"})
	if err == nil {
		t.Fatalf("ListModels accepted settings without credentials")
	}
}
