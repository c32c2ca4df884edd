package registry

import (
	"encoding/json"
	"strings"
)

// SentinelTool is the completion tool every agent role must be allowed to
// call. A role that cannot report completion wedges its task loop, so the
// store re-inserts it on every write instead of rejecting its absence.
const SentinelTool = "set_work_completed"

type Provider struct {
	ID           int64  `json:"id"`
	ProviderName string `json:"provider_name"`
	DisplayName  string `json:"display_name"`
	ExtraInfo    string `json:"extra_info,omitempty"`
}

type Model struct {
	ID                int64  `json:"id"`
	ProviderID        int64  `json:"provider_id"`
	ModelName         string `json:"model_name"`
	DisplayName       string `json:"display_name"`
	ExtraInfo         string `json:"extra_info,omitempty"`
	SupportsReasoning bool   `json:"supports_reasoning"`
}

type AgentRole struct {
	ID                     int64    `json:"id"`
	AgentRole              string   `json:"agent_role"`
	AgentDescription       string   `json:"agent_description"`
	AllowedTools           []string `json:"allowed_tools"`
	DefaultDeveloperPrompt string   `json:"default_developer_prompt"`
	DefaultUserPrompt      string   `json:"default_user_prompt"`
	ModelID                *int64   `json:"model_id"`
	ReasoningLevel         string   `json:"reasoning_level"`
	ToolChoice             string   `json:"tool_choice"`
}

type Task struct {
	ID         int64  `json:"id"`
	TaskName   string `json:"task_name"`
	TaskPrompt string `json:"task_prompt"`
}

// NormalizeAllowedTools trims, de-duplicates (keeping first occurrence order)
// and guarantees the sentinel completion tool is present.
func NormalizeAllowedTools(tools []string) []string {
	out := make([]string, 0, len(tools)+1)
	seen := make(map[string]bool, len(tools)+1)
	for _, t := range tools {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if !seen[SentinelTool] {
		out = append(out, SentinelTool)
	}
	return out
}

func normalizeReasoningLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "low", "medium", "high":
		return level
	default:
		return ""
	}
}

func normalizeToolChoice(choice string) string {
	choice = strings.ToLower(strings.TrimSpace(choice))
	switch choice {
	case "none", "auto", "required":
		return choice
	default:
		return "auto"
	}
}

// allowed_tools is stored as a JSON array in a TEXT column.

func encodeAllowedTools(tools []string) string {
	b, err := json.Marshal(tools)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeAllowedTools(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
