package registry

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "controlplane.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertProvider_DefaultsAndNaturalKey(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertProvider(ctx, Provider{ProviderName: "openai"})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	if p.DisplayName != "openai" {
		t.Fatalf("DisplayName=%q, want provider_name fallback", p.DisplayName)
	}
	if p.ID <= 0 {
		t.Fatalf("ID=%d, want > 0", p.ID)
	}

	// Same natural key upserts in place.
	p2, err := s.UpsertProvider(ctx, Provider{ProviderName: "openai", DisplayName: "OpenAI", ExtraInfo: "{}"})
	if err != nil {
		t.Fatalf("UpsertProvider update: %v", err)
	}
	if p2.ID != p.ID {
		t.Fatalf("ID=%d, want %d (update, not insert)", p2.ID, p.ID)
	}

	list, err := s.ListProviders(ctx)
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len=%d, want 1", len(list))
	}
	if list[0].DisplayName != "OpenAI" {
		t.Fatalf("DisplayName=%q, want OpenAI", list[0].DisplayName)
	}
}

func TestDeleteProvider_DoesNotCascadeToModels(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertProvider(ctx, Provider{ProviderName: "openai"})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	m, err := s.UpsertModel(ctx, Model{ProviderID: p.ID, ModelName: "gpt-4", SupportsReasoning: true})
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}

	if err := s.DeleteProvider(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProvider: %v", err)
	}

	models, err := s.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || models[0].ID != m.ID || models[0].ProviderID != p.ID {
		t.Fatalf("models=%+v, want dangling row for provider %d", models, p.ID)
	}
}

func TestDeleteProvider_Missing(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	if err := s.DeleteProvider(context.Background(), 999); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err=%v, want sql.ErrNoRows", err)
	}
}

func TestUpsertModel_DisplayNameDefault(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertProvider(ctx, Provider{ProviderName: "openai"})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	m, err := s.UpsertModel(ctx, Model{ProviderID: p.ID, ModelName: "gpt-4", SupportsReasoning: true})
	if err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}
	if m.DisplayName != "gpt-4" {
		t.Fatalf("DisplayName=%q, want model_name fallback", m.DisplayName)
	}

	got, err := s.GetModel(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if got == nil || !got.SupportsReasoning {
		t.Fatalf("GetModel=%+v, want supports_reasoning true", got)
	}
}

func TestUpsertAgentRole_SentinelAlwaysPresent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertAgentRole(ctx, AgentRole{
		AgentRole:    "coder",
		AllowedTools: []string{"run_bash", "write_file", "run_bash"},
	})
	if err != nil {
		t.Fatalf("UpsertAgentRole: %v", err)
	}

	want := []string{"run_bash", "write_file", SentinelTool}
	if len(a.AllowedTools) != len(want) {
		t.Fatalf("AllowedTools=%v, want %v", a.AllowedTools, want)
	}
	for i := range want {
		if a.AllowedTools[i] != want[i] {
			t.Fatalf("AllowedTools=%v, want %v", a.AllowedTools, want)
		}
	}

	// Re-read through the store, not just the upsert return value.
	got, err := s.GetAgentRole(ctx, "coder")
	if err != nil {
		t.Fatalf("GetAgentRole: %v", err)
	}
	found := false
	for _, tool := range got.AllowedTools {
		if tool == SentinelTool {
			found = true
		}
	}
	if !found {
		t.Fatalf("stored AllowedTools=%v, sentinel missing", got.AllowedTools)
	}
}

func TestAgentRole_ReasoningLevelBlankedWithoutReasoningModel(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertProvider(ctx, Provider{ProviderName: "openai"})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	reasoner, err := s.UpsertModel(ctx, Model{ProviderID: p.ID, ModelName: "o3", SupportsReasoning: true})
	if err != nil {
		t.Fatalf("UpsertModel reasoner: %v", err)
	}
	plain, err := s.UpsertModel(ctx, Model{ProviderID: p.ID, ModelName: "gpt-4", SupportsReasoning: false})
	if err != nil {
		t.Fatalf("UpsertModel plain: %v", err)
	}

	a, err := s.UpsertAgentRole(ctx, AgentRole{AgentRole: "coder", ModelID: &reasoner.ID, ReasoningLevel: "high"})
	if err != nil {
		t.Fatalf("UpsertAgentRole: %v", err)
	}
	if a.ReasoningLevel != "high" {
		t.Fatalf("ReasoningLevel=%q, want high for reasoning model", a.ReasoningLevel)
	}

	// Re-point to a non-reasoning model: the stored level survives but reads blank it.
	a.ModelID = &plain.ID
	a2, err := s.UpsertAgentRole(ctx, *a)
	if err != nil {
		t.Fatalf("UpsertAgentRole re-point: %v", err)
	}
	if a2.ReasoningLevel != "" {
		t.Fatalf("ReasoningLevel=%q, want blanked", a2.ReasoningLevel)
	}

	// A dangling model reference blanks the level too.
	if err := s.DeleteModel(ctx, plain.ID); err != nil {
		t.Fatalf("DeleteModel: %v", err)
	}
	got, err := s.GetAgentRole(ctx, "coder")
	if err != nil {
		t.Fatalf("GetAgentRole: %v", err)
	}
	if got.ModelID == nil || *got.ModelID != plain.ID {
		t.Fatalf("ModelID=%v, want dangling reference kept", got.ModelID)
	}
	if got.ReasoningLevel != "" {
		t.Fatalf("ReasoningLevel=%q, want blanked for dangling model", got.ReasoningLevel)
	}
}

func TestUpsertAgentRole_NormalizesToolChoice(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.UpsertAgentRole(ctx, AgentRole{AgentRole: "reviewer", ToolChoice: "bogus"})
	if err != nil {
		t.Fatalf("UpsertAgentRole: %v", err)
	}
	if a.ToolChoice != "auto" {
		t.Fatalf("ToolChoice=%q, want auto", a.ToolChoice)
	}

	a.ToolChoice = "required"
	a2, err := s.UpsertAgentRole(ctx, *a)
	if err != nil {
		t.Fatalf("UpsertAgentRole required: %v", err)
	}
	if a2.ToolChoice != "required" {
		t.Fatalf("ToolChoice=%q, want required", a2.ToolChoice)
	}
}

func TestTasks_UpsertByNameAndDelete(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	task, err := s.UpsertTask(ctx, Task{TaskName: "triage", TaskPrompt: "Sort incoming issues."})
	if err != nil {
		t.Fatalf("UpsertTask: %v", err)
	}
	again, err := s.UpsertTask(ctx, Task{TaskName: "triage", TaskPrompt: "Sort and label incoming issues."})
	if err != nil {
		t.Fatalf("UpsertTask again: %v", err)
	}
	if again.ID != task.ID {
		t.Fatalf("ID=%d, want %d (last write wins on task_name)", again.ID, task.ID)
	}

	got, err := s.GetTaskByName(ctx, "triage")
	if err != nil {
		t.Fatalf("GetTaskByName: %v", err)
	}
	if got == nil || got.TaskPrompt != "Sort and label incoming issues." {
		t.Fatalf("GetTaskByName=%+v", got)
	}

	if err := s.DeleteTaskByName(ctx, "triage"); err != nil {
		t.Fatalf("DeleteTaskByName: %v", err)
	}
	if err := s.DeleteTask(ctx, task.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("second delete err=%v, want sql.ErrNoRows", err)
	}
}

func TestMigrate_BackfillsColumnsOnOldDB(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "controlplane.sqlite")
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	_, err = raw.Exec(`
CREATE TABLE models (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider_id INTEGER NOT NULL,
  model_name TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  extra_info TEXT NOT NULL DEFAULT '',
  UNIQUE(provider_id, model_name)
);
CREATE TABLE agent_roles (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  agent_role TEXT NOT NULL UNIQUE,
  agent_description TEXT NOT NULL DEFAULT '',
  allowed_tools TEXT NOT NULL DEFAULT '[]',
  default_developer_prompt TEXT NOT NULL DEFAULT '',
  default_user_prompt TEXT NOT NULL DEFAULT '',
  model_id INTEGER
);
INSERT INTO models(provider_id, model_name) VALUES(1, 'legacy');
INSERT INTO agent_roles(agent_role) VALUES('legacy');
`)
	if err != nil {
		t.Fatalf("seed old schema: %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("close raw: %v", err)
	}

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open after old schema: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	models, err := s.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 1 || !models[0].SupportsReasoning {
		t.Fatalf("models=%+v, want backfilled supports_reasoning default 1", models)
	}

	roles, err := s.ListAgentRoles(ctx)
	if err != nil {
		t.Fatalf("ListAgentRoles: %v", err)
	}
	if len(roles) != 1 || roles[0].ToolChoice != "auto" {
		t.Fatalf("roles=%+v, want backfilled tool_choice auto", roles)
	}
}

func TestNormalizeAllowedTools(t *testing.T) {
	t.Parallel()

	got := NormalizeAllowedTools(nil)
	if len(got) != 1 || got[0] != SentinelTool {
		t.Fatalf("NormalizeAllowedTools(nil)=%v", got)
	}

	got = NormalizeAllowedTools([]string{" run_bash ", "", SentinelTool, "run_bash"})
	if len(got) != 2 || got[0] != "run_bash" || got[1] != SentinelTool {
		t.Fatalf("NormalizeAllowedTools=%v", got)
	}
}
