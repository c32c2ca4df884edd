// Package template snapshots the registry to a directory of YAML files and
// loads such snapshots back, resolving foreign keys by name.
package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solvin/controlplane/internal/registry"
)

type Options struct {
	Logger *slog.Logger
	Store  *registry.Store

	// Dir holds one subdirectory per named template.
	Dir string
}

type Manager struct {
	log   *slog.Logger
	store *registry.Store
	dir   string
}

func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("missing Store")
	}
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, errors.New("missing Dir")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{log: logger, store: opts.Store, dir: dir}, nil
}

const (
	providersFile = "providers.yaml"
	modelsFile    = "models.yaml"
	agentsFile    = "agents.yaml"
	tasksFile     = "tasks.yaml"
)

// On-disk record shapes. Foreign keys are carried by name so a template stays
// portable across stores with different internal ids.

type providerRecord struct {
	ProviderName string `yaml:"provider_name"`
	DisplayName  string `yaml:"display_name,omitempty"`
	ExtraInfo    string `yaml:"extra_info,omitempty"`
}

type modelRecord struct {
	ProviderName      string `yaml:"provider_name"`
	ModelName         string `yaml:"model_name"`
	DisplayName       string `yaml:"display_name,omitempty"`
	ExtraInfo         string `yaml:"extra_info,omitempty"`
	SupportsReasoning *bool  `yaml:"supports_reasoning,omitempty"`
}

type agentRecord struct {
	AgentRole              string   `yaml:"agent_role"`
	AgentDescription       string   `yaml:"agent_description,omitempty"`
	AllowedTools           []string `yaml:"allowed_tools"`
	DefaultDeveloperPrompt string   `yaml:"default_developer_prompt,omitempty"`
	DefaultUserPrompt      string   `yaml:"default_user_prompt,omitempty"`
	ProviderName           string   `yaml:"provider_name,omitempty"`
	ModelName              string   `yaml:"model_name,omitempty"`
	ReasoningLevel         string   `yaml:"reasoning_level,omitempty"`
	ToolChoice             string   `yaml:"tool_choice,omitempty"`
}

type taskRecord struct {
	TaskName   string `yaml:"task_name"`
	TaskPrompt string `yaml:"task_prompt,omitempty"`
}

// List returns the names of the stored templates, sorted.
func (m *Manager) List() ([]string, error) {
	if m == nil {
		return nil, errors.New("manager not initialized")
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("missing template name")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid template name: %q", name)
	}
	return name, nil
}

// Export writes the registry contents to <dir>/<name>/ as four YAML files,
// in fixed order: providers, models, agents, tasks.
func (m *Manager) Export(ctx context.Context, name string) error {
	if m == nil {
		return errors.New("manager not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name, err := validateName(name)
	if err != nil {
		return err
	}

	dir := filepath.Join(m.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	providers, err := m.store.ListProviders(ctx)
	if err != nil {
		return err
	}
	providerNameByID := make(map[int64]string, len(providers))
	provRecs := make([]providerRecord, 0, len(providers))
	for _, p := range providers {
		providerNameByID[p.ID] = p.ProviderName
		provRecs = append(provRecs, providerRecord{
			ProviderName: p.ProviderName,
			DisplayName:  p.DisplayName,
			ExtraInfo:    p.ExtraInfo,
		})
	}
	if err := writeYAML(filepath.Join(dir, providersFile), provRecs); err != nil {
		return err
	}

	models, err := m.store.ListModels(ctx)
	if err != nil {
		return err
	}
	type modelKey struct {
		provider string
		model    string
	}
	modelKeyByID := make(map[int64]modelKey, len(models))
	modelRecs := make([]modelRecord, 0, len(models))
	for _, mo := range models {
		providerName := providerNameByID[mo.ProviderID]
		if providerName == "" {
			m.log.Warn("export: model has dangling provider reference",
				"model_name", mo.ModelName, "provider_id", mo.ProviderID)
		}
		modelKeyByID[mo.ID] = modelKey{provider: providerName, model: mo.ModelName}
		reasoning := mo.SupportsReasoning
		modelRecs = append(modelRecs, modelRecord{
			ProviderName:      providerName,
			ModelName:         mo.ModelName,
			DisplayName:       mo.DisplayName,
			ExtraInfo:         mo.ExtraInfo,
			SupportsReasoning: &reasoning,
		})
	}
	if err := writeYAML(filepath.Join(dir, modelsFile), modelRecs); err != nil {
		return err
	}

	agents, err := m.store.ListAgentRoles(ctx)
	if err != nil {
		return err
	}
	agentRecs := make([]agentRecord, 0, len(agents))
	for _, a := range agents {
		rec := agentRecord{
			AgentRole:              a.AgentRole,
			AgentDescription:       a.AgentDescription,
			AllowedTools:           a.AllowedTools,
			DefaultDeveloperPrompt: a.DefaultDeveloperPrompt,
			DefaultUserPrompt:      a.DefaultUserPrompt,
			ReasoningLevel:         a.ReasoningLevel,
			ToolChoice:             a.ToolChoice,
		}
		if a.ModelID != nil {
			key := modelKeyByID[*a.ModelID]
			rec.ProviderName = key.provider
			rec.ModelName = key.model
		}
		agentRecs = append(agentRecs, rec)
	}
	if err := writeYAML(filepath.Join(dir, agentsFile), agentRecs); err != nil {
		return err
	}

	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	taskRecs := make([]taskRecord, 0, len(tasks))
	for _, task := range tasks {
		taskRecs = append(taskRecs, taskRecord{TaskName: task.TaskName, TaskPrompt: task.TaskPrompt})
	}
	if err := writeYAML(filepath.Join(dir, tasksFile), taskRecs); err != nil {
		return err
	}

	m.log.Info("template exported", "name", name,
		"providers", len(provRecs), "models", len(modelRecs),
		"agents", len(agentRecs), "tasks", len(taskRecs))
	return nil
}

// Import loads <dir>/<name>/ into the registry in dependency order:
// providers, models, agents, tasks.
//
// Rows are committed one at a time and entities are not wrapped in a shared
// transaction, so a malformed file mid-sequence leaves the earlier entities
// loaded and the later ones wiped. Concurrent readers can observe the
// intermediate states.
func (m *Manager) Import(ctx context.Context, name string, wipe bool) error {
	if m == nil {
		return errors.New("manager not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name, err := validateName(name)
	if err != nil {
		return err
	}
	dir := filepath.Join(m.dir, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("template %q: %w", name, err)
	}

	if wipe {
		if err := m.wipeAll(ctx); err != nil {
			return err
		}
	}

	// Providers.
	var provRecs []providerRecord
	if err := readYAML(filepath.Join(dir, providersFile), &provRecs); err != nil {
		return err
	}
	providerIDByName := make(map[string]int64, len(provRecs))
	for _, rec := range provRecs {
		p, err := m.store.UpsertProvider(ctx, registry.Provider{
			ProviderName: rec.ProviderName,
			DisplayName:  rec.DisplayName,
			ExtraInfo:    rec.ExtraInfo,
		})
		if err != nil {
			return fmt.Errorf("import provider %q: %w", rec.ProviderName, err)
		}
		providerIDByName[p.ProviderName] = p.ID
	}

	// Models. An unknown provider name is a hard error: the template is
	// internally inconsistent and silently skipping the row would hide it.
	var modelRecs []modelRecord
	if err := readYAML(filepath.Join(dir, modelsFile), &modelRecs); err != nil {
		return err
	}
	type modelKey struct {
		provider string
		model    string
	}
	modelIDByKey := make(map[modelKey]int64, len(modelRecs))
	for _, rec := range modelRecs {
		providerName := strings.TrimSpace(rec.ProviderName)
		providerID, ok := providerIDByName[providerName]
		if !ok {
			return fmt.Errorf("import model %q: unknown provider %q", rec.ModelName, providerName)
		}
		reasoning := true
		if rec.SupportsReasoning != nil {
			reasoning = *rec.SupportsReasoning
		}
		mo, err := m.store.UpsertModel(ctx, registry.Model{
			ProviderID:        providerID,
			ModelName:         rec.ModelName,
			DisplayName:       rec.DisplayName,
			ExtraInfo:         rec.ExtraInfo,
			SupportsReasoning: reasoning,
		})
		if err != nil {
			return fmt.Errorf("import model %q: %w", rec.ModelName, err)
		}
		modelIDByKey[modelKey{provider: providerName, model: mo.ModelName}] = mo.ID
	}

	// Agents. An unknown model is tolerated: the role is still useful without
	// a bound model, so it is stored with a null reference.
	var agentRecs []agentRecord
	if err := readYAML(filepath.Join(dir, agentsFile), &agentRecs); err != nil {
		return err
	}
	for _, rec := range agentRecs {
		var modelID *int64
		if strings.TrimSpace(rec.ModelName) != "" {
			key := modelKey{provider: strings.TrimSpace(rec.ProviderName), model: strings.TrimSpace(rec.ModelName)}
			if id, ok := modelIDByKey[key]; ok {
				modelID = &id
			} else {
				m.log.Warn("import: agent references unknown model, storing null reference",
					"agent_role", rec.AgentRole, "provider_name", key.provider, "model_name", key.model)
			}
		}
		_, err := m.store.UpsertAgentRole(ctx, registry.AgentRole{
			AgentRole:              rec.AgentRole,
			AgentDescription:       rec.AgentDescription,
			AllowedTools:           rec.AllowedTools,
			DefaultDeveloperPrompt: rec.DefaultDeveloperPrompt,
			DefaultUserPrompt:      rec.DefaultUserPrompt,
			ModelID:                modelID,
			ReasoningLevel:         rec.ReasoningLevel,
			ToolChoice:             rec.ToolChoice,
		})
		if err != nil {
			return fmt.Errorf("import agent %q: %w", rec.AgentRole, err)
		}
	}

	// Tasks.
	var taskRecs []taskRecord
	if err := readYAML(filepath.Join(dir, tasksFile), &taskRecs); err != nil {
		return err
	}
	for _, rec := range taskRecs {
		if _, err := m.store.UpsertTask(ctx, registry.Task{TaskName: rec.TaskName, TaskPrompt: rec.TaskPrompt}); err != nil {
			return fmt.Errorf("import task %q: %w", rec.TaskName, err)
		}
	}

	m.log.Info("template imported", "name", name, "wipe", wipe,
		"providers", len(provRecs), "models", len(modelRecs),
		"agents", len(agentRecs), "tasks", len(taskRecs))
	return nil
}

func (m *Manager) wipeAll(ctx context.Context) error {
	providers, err := m.store.ListProviders(ctx)
	if err != nil {
		return err
	}
	for _, p := range providers {
		if err := m.store.DeleteProvider(ctx, p.ID); err != nil {
			return fmt.Errorf("wipe provider %q: %w", p.ProviderName, err)
		}
	}

	models, err := m.store.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, mo := range models {
		if err := m.store.DeleteModel(ctx, mo.ID); err != nil {
			return fmt.Errorf("wipe model %q: %w", mo.ModelName, err)
		}
	}

	agents, err := m.store.ListAgentRoles(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if err := m.store.DeleteAgentRole(ctx, a.AgentRole); err != nil {
			return fmt.Errorf("wipe agent %q: %w", a.AgentRole, err)
		}
	}

	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if err := m.store.DeleteTask(ctx, task.ID); err != nil {
			return fmt.Errorf("wipe task %q: %w", task.TaskName, err)
		}
	}
	return nil
}

func writeYAML(path string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func readYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
